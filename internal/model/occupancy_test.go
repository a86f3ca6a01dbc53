package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOccupancyClass(t *testing.T) {
	tests := []struct {
		label    string
		expected OccupancyClass
	}{
		{"1-Unit Residential", ClassOneUnit},
		{"2-Unit Residential", ClassTwoUnit},
		{"3-Unit Residential", ClassThreeUnit},
		{"4+ Unit Residential", ClassFourPlusUnit},
		{"  1-Unit Residential ", ClassOneUnit},
		{"Commercial", ClassCommercial},
		{"Grocery", ClassCommercial},
		{"Industrial", ClassIndustrial},
		{"Mixed Use", ClassMixedUse},
		{"Non-Residential", ClassNonResidential},
		{"Nonresidential", ClassNonResidential},
		{"Group Quarters Residential", ClassOtherResidential},
		{"residential", ClassUnknown}, // case-sensitive marker
		{"", ClassUnknown},
		{"Parking", ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseOccupancyClass(tt.label))
		})
	}
}

func TestUnitMultiplier(t *testing.T) {
	assert.Equal(t, 1, ClassOneUnit.UnitMultiplier())
	assert.Equal(t, 2, ClassTwoUnit.UnitMultiplier())
	assert.Equal(t, 3, ClassThreeUnit.UnitMultiplier())
	assert.Equal(t, 4, ClassFourPlusUnit.UnitMultiplier())

	for _, c := range []OccupancyClass{
		ClassUnknown, ClassOtherResidential, ClassCommercial, ClassIndustrial,
		ClassInstitutional, ClassMixedUse, ClassNonResidential,
	} {
		assert.Zero(t, c.UnitMultiplier(), "class %s", c)
	}
}

func TestIsResidential(t *testing.T) {
	assert.True(t, ClassOneUnit.IsResidential())
	assert.True(t, ClassFourPlusUnit.IsResidential())
	assert.True(t, ClassOtherResidential.IsResidential())
	assert.False(t, ClassCommercial.IsResidential())
	assert.False(t, ClassNonResidential.IsResidential())
	assert.False(t, ClassUnknown.IsResidential())
}

func TestClassByName(t *testing.T) {
	c, ok := ClassByName("Four_Plus_Unit")
	assert.True(t, ok)
	assert.Equal(t, ClassFourPlusUnit, c)

	_, ok = ClassByName("skyscraper")
	assert.False(t, ok)
}

func TestClassTable_AliasesWin(t *testing.T) {
	table := NewClassTable(map[string]OccupancyClass{
		"SFR":               ClassOneUnit,
		"Commercial":        ClassMixedUse,
		" Duplex Dwelling ": ClassTwoUnit,
	})

	assert.Equal(t, ClassOneUnit, table.Parse("SFR"))
	assert.Equal(t, ClassMixedUse, table.Parse("Commercial"))
	assert.Equal(t, ClassTwoUnit, table.Parse("Duplex Dwelling"))
	assert.Equal(t, ClassThreeUnit, table.Parse("3-Unit Residential"))

	var nilTable *ClassTable
	assert.Equal(t, ClassOneUnit, nilTable.Parse("1-Unit Residential"))
}
