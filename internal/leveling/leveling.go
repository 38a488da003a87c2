// Package leveling converts accumulated XP into a level on a per-space curve.
package leveling

import "math"

// MaxLevel is the level cap. XP beyond the cap threshold has no effect.
const MaxLevel = 80

// Table maps a level to the XP needed to advance from it to the next level.
// Missing or non-positive entries use DefaultRequirement.
type Table map[int]int

// DefaultRequirement is the fallback XP cost of advancing from level.
func DefaultRequirement(level int) int {
	return int(math.Round(100 * (1 + float64(level)*0.02)))
}

// Requirement returns the XP needed to advance from level.
func (t Table) Requirement(level int) int {
	if xp, ok := t[level]; ok && xp > 0 {
		return xp
	}
	return DefaultRequirement(level)
}

// Progress describes where a total sits on the curve.
type Progress struct {
	Level         int
	XPIntoLevel   int
	XPToNextLevel int
	Percent       float64
}

// Level returns the level reached with totalXP. Level(0) is 1.
func Level(totalXP int, t Table) int {
	return ProgressFor(totalXP, t).Level
}

// ProgressFor walks the curve and reports the level plus progress into it.
func ProgressFor(totalXP int, t Table) Progress {
	if totalXP < 0 {
		totalXP = 0
	}
	level := 1
	remaining := totalXP
	for level < MaxLevel {
		need := t.Requirement(level)
		if remaining < need {
			return Progress{
				Level:         level,
				XPIntoLevel:   remaining,
				XPToNextLevel: need - remaining,
				Percent:       float64(remaining) / float64(need) * 100,
			}
		}
		remaining -= need
		level++
	}
	return Progress{Level: MaxLevel, XPIntoLevel: remaining, Percent: 100}
}
