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

package countries

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// CountryBlock defines the inclusive range of the first variable octet
// reserved for a country. The table is shared by all users and read-only at
// runtime; consumption is always scoped per user
type CountryBlock struct {
	Name      string `yaml:"name"`
	Continent string `yaml:"continent"`
	XStart    uint8  `yaml:"xStart"`
	XEnd      uint8  `yaml:"xEnd"`
}

// Capacity returns the total number of region slots within the country block
func (c CountryBlock) Capacity() int {
	return (int(c.XEnd) - int(c.XStart) + 1) * 256
}

// Contains returns whether the given first octet falls within the block
func (c CountryBlock) Contains(x uint8) bool {
	return x >= c.XStart && x <= c.XEnd
}

// Table is a validated, immutable set of country blocks
type Table struct {
	blocks []CountryBlock
	byName map[string]CountryBlock
}

type tableFile struct {
	Countries []CountryBlock `yaml:"countries"`
}

// NewTable creates a country table from the provided blocks. The blocks must
// have unique names, valid ranges, and must not overlap each other
func NewTable(blocks []CountryBlock) (*Table, error) {
	t := &Table{
		blocks: make([]CountryBlock, len(blocks)),
		byName: make(map[string]CountryBlock),
	}
	copy(t.blocks, blocks)
	sort.Slice(t.blocks, func(i, j int) bool {
		return t.blocks[i].XStart < t.blocks[j].XStart
	})
	for idx, block := range t.blocks {
		if block.Name == "" {
			return nil, fmt.Errorf("country block with empty name")
		}
		if block.XEnd < block.XStart {
			return nil, fmt.Errorf(
				"country %s: invalid octet range: %d-%d",
				block.Name,
				block.XStart,
				block.XEnd,
			)
		}
		if _, ok := t.byName[block.Name]; ok {
			return nil, fmt.Errorf("duplicate country name: %s", block.Name)
		}
		t.byName[block.Name] = block
		// Blocks are sorted by XStart, so overlap can only be with the previous block
		if idx > 0 {
			prevBlock := t.blocks[idx-1]
			if block.XStart <= prevBlock.XEnd {
				return nil, fmt.Errorf(
					"country %s overlaps %s: %d <= %d",
					block.Name,
					prevBlock.Name,
					block.XStart,
					prevBlock.XEnd,
				)
			}
		}
	}
	return t, nil
}

// NewTableFromReader loads a country table from YAML
func NewTableFromReader(r io.Reader) (*Table, error) {
	var tmpFile tableFile
	dec := yaml.NewDecoder(r)
	// Require all fields provided in YAML to exist in our target object
	dec.KnownFields(true)
	if err := dec.Decode(&tmpFile); err != nil {
		return nil, err
	}
	return NewTable(tmpFile.Countries)
}

// NewTableFromFile loads a country table from a YAML file
func NewTableFromFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewTableFromReader(f)
}

// ByName returns the country block with the given name
func (t *Table) ByName(name string) (CountryBlock, bool) {
	block, ok := t.byName[name]
	return block, ok
}

// ByOctet returns the country block containing the given first octet
func (t *Table) ByOctet(x uint8) (CountryBlock, bool) {
	for _, block := range t.blocks {
		if block.Contains(x) {
			return block, true
		}
	}
	return CountryBlock{}, false
}

// Blocks returns all country blocks ordered by octet range
func (t *Table) Blocks() []CountryBlock {
	ret := make([]CountryBlock, len(t.blocks))
	copy(ret, t.blocks)
	return ret
}

// DefaultTable returns the builtin country table. It can be replaced at
// startup with a custom table loaded from a YAML file
func DefaultTable() *Table {
	t, err := NewTable(defaultBlocks)
	if err != nil {
		// The builtin table is static and validated by tests
		panic(err)
	}
	return t
}

var defaultBlocks = []CountryBlock{
	{Name: "India", Continent: "Asia", XStart: 0, XEnd: 15},
	{Name: "China", Continent: "Asia", XStart: 16, XEnd: 31},
	{Name: "Japan", Continent: "Asia", XStart: 32, XEnd: 39},
	{Name: "Singapore", Continent: "Asia", XStart: 40, XEnd: 43},
	{Name: "South Korea", Continent: "Asia", XStart: 44, XEnd: 47},
	{Name: "Germany", Continent: "Europe", XStart: 64, XEnd: 79},
	{Name: "France", Continent: "Europe", XStart: 80, XEnd: 87},
	{Name: "United Kingdom", Continent: "Europe", XStart: 88, XEnd: 95},
	{Name: "Netherlands", Continent: "Europe", XStart: 96, XEnd: 99},
	{Name: "Sweden", Continent: "Europe", XStart: 100, XEnd: 103},
	{Name: "United States", Continent: "North America", XStart: 128, XEnd: 159},
	{Name: "Canada", Continent: "North America", XStart: 160, XEnd: 167},
	{Name: "Mexico", Continent: "North America", XStart: 168, XEnd: 171},
	{Name: "Brazil", Continent: "South America", XStart: 176, XEnd: 183},
	{Name: "Argentina", Continent: "South America", XStart: 184, XEnd: 187},
	{Name: "South Africa", Continent: "Africa", XStart: 192, XEnd: 195},
	{Name: "Egypt", Continent: "Africa", XStart: 196, XEnd: 199},
	{Name: "Nigeria", Continent: "Africa", XStart: 200, XEnd: 203},
	{Name: "Australia", Continent: "Oceania", XStart: 224, XEnd: 231},
	{Name: "New Zealand", Continent: "Oceania", XStart: 232, XEnd: 235},
}
