package model

import (
	"strings"
)

// OccupancyClass is the closed set of building occupancy classes the pipeline
// understands. Raw labels are parsed once at ingest; everything downstream
// switches on the variant instead of matching substrings.
type OccupancyClass int

// Occupancy classes.
const (
	ClassUnknown OccupancyClass = iota
	ClassOneUnit
	ClassTwoUnit
	ClassThreeUnit
	ClassFourPlusUnit
	ClassOtherResidential
	ClassCommercial
	ClassIndustrial
	ClassInstitutional
	ClassMixedUse
	ClassNonResidential
)

// Canonical labels as they appear in the building footprint layer.
const (
	LabelOneUnit      = "1-Unit Residential"
	LabelTwoUnit      = "2-Unit Residential"
	LabelThreeUnit    = "3-Unit Residential"
	LabelFourPlusUnit = "4+ Unit Residential"
)

// residentialMarker is the substring that marks an unrecognized label as
// residential. Matching is case-sensitive.
const residentialMarker = "Residential"

var classNames = map[OccupancyClass]string{
	ClassUnknown:          "unknown",
	ClassOneUnit:          "one_unit",
	ClassTwoUnit:          "two_unit",
	ClassThreeUnit:        "three_unit",
	ClassFourPlusUnit:     "four_plus_unit",
	ClassOtherResidential: "other_residential",
	ClassCommercial:       "commercial",
	ClassIndustrial:       "industrial",
	ClassInstitutional:    "institutional",
	ClassMixedUse:         "mixed_use",
	ClassNonResidential:   "non_residential",
}

// knownLabels maps exact footprint labels to their class. Labels that contain
// "Residential" but are not residential are listed here so they never reach
// the substring fallback.
var knownLabels = map[string]OccupancyClass{
	LabelOneUnit:      ClassOneUnit,
	LabelTwoUnit:      ClassTwoUnit,
	LabelThreeUnit:    ClassThreeUnit,
	LabelFourPlusUnit: ClassFourPlusUnit,
	"Commercial":      ClassCommercial,
	"Retail":          ClassCommercial,
	"Grocery":         ClassCommercial,
	"Office":          ClassCommercial,
	"Industrial":      ClassIndustrial,
	"Warehouse":       ClassIndustrial,
	"Institutional":   ClassInstitutional,
	"Government":      ClassInstitutional,
	"School":          ClassInstitutional,
	"Mixed Use":       ClassMixedUse,
	"Mixed-Use":       ClassMixedUse,
	"Non-Residential": ClassNonResidential,
	"Nonresidential":  ClassNonResidential,
	"NonResidential":  ClassNonResidential,
}

// ParseOccupancyClass maps a raw label to its class. Exact labels win; an
// unrecognized label containing "Residential" becomes ClassOtherResidential;
// anything else is ClassUnknown.
func ParseOccupancyClass(label string) OccupancyClass {
	label = strings.TrimSpace(label)
	if c, ok := knownLabels[label]; ok {
		return c
	}
	if strings.Contains(label, residentialMarker) {
		return ClassOtherResidential
	}
	return ClassUnknown
}

// ClassByName resolves a snake_case class name (as used in alias files).
func ClassByName(name string) (OccupancyClass, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, n := range classNames {
		if n == name {
			return c, true
		}
	}
	return ClassUnknown, false
}

// String returns the snake_case class name.
func (c OccupancyClass) String() string {
	if n, ok := classNames[c]; ok {
		return n
	}
	return classNames[ClassUnknown]
}

// IsResidential reports whether buildings of this class house residents.
func (c OccupancyClass) IsResidential() bool {
	switch c {
	case ClassOneUnit, ClassTwoUnit, ClassThreeUnit, ClassFourPlusUnit, ClassOtherResidential:
		return true
	default:
		return false
	}
}

// UnitMultiplier is the household-count heuristic for the class.
// 1..4 for the unit classes, 0 otherwise.
func (c OccupancyClass) UnitMultiplier() int {
	switch c {
	case ClassOneUnit:
		return 1
	case ClassTwoUnit:
		return 2
	case ClassThreeUnit:
		return 3
	case ClassFourPlusUnit:
		return 4
	default:
		return 0
	}
}

// ClassTable resolves labels using aliases first, then ParseOccupancyClass.
type ClassTable struct {
	aliases map[string]OccupancyClass
}

// NewClassTable builds a table from label → class aliases. A nil map is valid.
func NewClassTable(aliases map[string]OccupancyClass) *ClassTable {
	t := &ClassTable{aliases: make(map[string]OccupancyClass, len(aliases))}
	for k, v := range aliases {
		t.aliases[strings.TrimSpace(k)] = v
	}
	return t
}

// Parse resolves a label.
func (t *ClassTable) Parse(label string) OccupancyClass {
	if t != nil {
		if c, ok := t.aliases[strings.TrimSpace(label)]; ok {
			return c
		}
	}
	return ParseOccupancyClass(label)
}
