package service

import "math"

// MaxLevel bounds level lookups; xpRequiredForLevel(MaxLevel) is far beyond reachable XP
const MaxLevel = 100000

// XPRequiredForLevel returns the cumulative XP at which level is reached:
// floor(100 * level^1.5). Levels below 1 require nothing.
func XPRequiredForLevel(level int) int64 {
	if level <= 0 {
		return 0
	}
	return int64(math.Floor(100 * math.Pow(float64(level), 1.5)))
}

// LevelForXP returns the level reached with totalXP, never below 1.
//
// The closed form max(1, floor((xp/100)^(2/3))) loses precision at exact
// level boundaries, so the level is located by search over XPRequiredForLevel.
// LevelForXP(XPRequiredForLevel(L)) == L for every L >= 1.
func LevelForXP(totalXP int64) int {
	if totalXP < XPRequiredForLevel(2) {
		return 1
	}

	// estimate, then widen until the bracket holds the answer
	est := int(math.Pow(float64(totalXP)/100, 2.0/3.0))
	lo, hi := max(1, est-2), min(MaxLevel, est+2)
	for lo > 1 && XPRequiredForLevel(lo) > totalXP {
		lo /= 2
	}
	for hi < MaxLevel && XPRequiredForLevel(hi) <= totalXP {
		hi = min(MaxLevel, hi*2)
	}

	// largest L in [lo, hi] with XPRequiredForLevel(L) <= totalXP
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if XPRequiredForLevel(mid) <= totalXP {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return max(1, lo)
}

// LevelFloorXP returns the cumulative XP at the start of level. Level 1
// starts at zero XP.
func LevelFloorXP(level int) int64 {
	if level <= 1 {
		return 0
	}
	return XPRequiredForLevel(level)
}

// XPInLevel returns the XP earned within the current level
func XPInLevel(totalXP int64) int64 {
	if totalXP <= 0 {
		return 0
	}
	return totalXP - LevelFloorXP(LevelForXP(totalXP))
}

// ProgressInLevel returns the fraction [0, 1) of the current level completed
func ProgressInLevel(totalXP int64) float64 {
	if totalXP < 0 {
		totalXP = 0
	}
	level := LevelForXP(totalXP)
	floor := LevelFloorXP(level)
	span := XPRequiredForLevel(level+1) - floor
	if span <= 0 {
		return 0
	}
	return float64(totalXP-floor) / float64(span)
}

// XPToNextLevel returns the XP still needed to reach the next level
func XPToNextLevel(totalXP int64) int64 {
	if totalXP < 0 {
		totalXP = 0
	}
	return XPRequiredForLevel(LevelForXP(totalXP)+1) - totalXP
}
