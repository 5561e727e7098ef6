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

package countries_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/blinklabs-io/addrspace/countries"
)

type tableTestDefinition struct {
	yamlData       string
	expectedBlocks []countries.CountryBlock
	expectedErr    string
}

var tableTests = []tableTestDefinition{
	{
		yamlData: `
countries:
  - name: India
    continent: Asia
    xStart: 0
    xEnd: 0
  - name: Germany
    continent: Europe
    xStart: 64
    xEnd: 79
`,
		expectedBlocks: []countries.CountryBlock{
			{
				Name:      "India",
				Continent: "Asia",
				XStart:    0,
				XEnd:      0,
			},
			{
				Name:      "Germany",
				Continent: "Europe",
				XStart:    64,
				XEnd:      79,
			},
		},
	},
	{
		yamlData: `
countries:
  - name: India
    continent: Asia
    xStart: 0
    xEnd: 15
  - name: China
    continent: Asia
    xStart: 10
    xEnd: 31
`,
		expectedErr: "country China overlaps India: 10 <= 15",
	},
	{
		yamlData: `
countries:
  - name: India
    continent: Asia
    xStart: 15
    xEnd: 0
`,
		expectedErr: "country India: invalid octet range: 15-0",
	},
	{
		yamlData: `
countries:
  - name: India
    continent: Asia
    xStart: 0
    xEnd: 0
  - name: India
    continent: Asia
    xStart: 1
    xEnd: 1
`,
		expectedErr: "duplicate country name: India",
	},
}

func TestParseCountryTable(t *testing.T) {
	for _, test := range tableTests {
		table, err := countries.NewTableFromReader(
			strings.NewReader(test.yamlData),
		)
		if test.expectedErr != "" {
			if err == nil || err.Error() != test.expectedErr {
				t.Fatalf(
					"did not get expected error\n  got:    %v\n  wanted: %s",
					err,
					test.expectedErr,
				)
			}
			continue
		}
		if err != nil {
			t.Fatalf("failed to load country table from YAML data: %s", err)
		}
		if !reflect.DeepEqual(table.Blocks(), test.expectedBlocks) {
			t.Fatalf(
				"did not get expected object\n  got:\n    %#v\n  wanted:\n    %#v",
				table.Blocks(),
				test.expectedBlocks,
			)
		}
	}
}

func TestDefaultTable(t *testing.T) {
	table := countries.DefaultTable()
	if len(table.Blocks()) == 0 {
		t.Fatalf("default table is empty")
	}
	block, ok := table.ByName("India")
	if !ok {
		t.Fatalf("default table is missing India")
	}
	if block.Capacity() != 4096 {
		t.Fatalf(
			"did not get expected capacity, got %d, wanted %d",
			block.Capacity(),
			4096,
		)
	}
	octetBlock, ok := table.ByOctet(130)
	if !ok || octetBlock.Name != "United States" {
		t.Fatalf("did not get expected country for octet 130: %#v", octetBlock)
	}
	if _, ok := table.ByOctet(255); ok {
		t.Fatalf("octet 255 should not map to a country")
	}
}
