package types

import "fmt"

// MemoryCategory classifies an extracted memory
type MemoryCategory string

const (
	MemoryCategoryGoal       MemoryCategory = "goal"
	MemoryCategoryEvent      MemoryCategory = "event"
	MemoryCategoryFeeling    MemoryCategory = "feeling"
	MemoryCategoryPerson     MemoryCategory = "person"
	MemoryCategoryPlan       MemoryCategory = "plan"
	MemoryCategoryReflection MemoryCategory = "reflection"
)

// AllMemoryCategories returns all valid memory categories
func AllMemoryCategories() []MemoryCategory {
	return []MemoryCategory{
		MemoryCategoryGoal,
		MemoryCategoryEvent,
		MemoryCategoryFeeling,
		MemoryCategoryPerson,
		MemoryCategoryPlan,
		MemoryCategoryReflection,
	}
}

// IsValid checks if the memory category is valid
func (c MemoryCategory) IsValid() bool {
	switch c {
	case MemoryCategoryGoal,
		MemoryCategoryEvent,
		MemoryCategoryFeeling,
		MemoryCategoryPerson,
		MemoryCategoryPlan,
		MemoryCategoryReflection:
		return true
	default:
		return false
	}
}

// String returns the string representation of the memory category
func (c MemoryCategory) String() string {
	return string(c)
}

// ParseMemoryCategory parses a string into a MemoryCategory
func ParseMemoryCategory(s string) (MemoryCategory, error) {
	category := MemoryCategory(s)
	if !category.IsValid() {
		return "", fmt.Errorf("invalid memory category: %s", s)
	}
	return category, nil
}
