// Package impact estimates the blast radius of changing an entity.
//
// AnalyzeImpact walks the lineage graph downstream and upstream at the same
// time, classifies downstream entities as critical, and scores the change
// into one of four risk levels with matching recommendations.
//
// Risk levels are threshold based and evaluated highest first:
//
//	CRITICAL  critical > 5 or downstream > 50
//	HIGH      critical > 2 or downstream > 20
//	MEDIUM    critical > 0 or downstream > 5
//	LOW       otherwise
package impact
