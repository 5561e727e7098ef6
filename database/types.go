// Copyright 2024 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// TagMap is a string key/value map stored as a JSON text column in sqlite
type TagMap map[string]string

func (t TagMap) Value() (driver.Value, error) {
	if len(t) == 0 {
		return "{}", nil
	}
	tmpJson, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(tmpJson), nil
}

func (t *TagMap) Scan(val any) error {
	v, ok := val.(string)
	if !ok {
		return fmt.Errorf(
			"value was not expected type, wanted string, got %T",
			val,
		)
	}
	if v == "" {
		*t = nil
		return nil
	}
	if err := json.Unmarshal([]byte(v), t); err != nil {
		return fmt.Errorf("failed to set TagMap value from string: %w", err)
	}
	return nil
}
