package measure

import "strings"

// Status flags continue the detection flag bit vector of types.Source.
const (
	FlagFailInitTooLarge  int64 = 0x00010000
	FlagFailInitTooSmall  int64 = 0x00020000
	FlagFailInitSGNaN     int64 = 0x00100000
	FlagFailInitSGMoments int64 = 0x00200000
	FlagFailFitSGRadius   int64 = 0x00800000
	FlagFailFitSGUnknown  int64 = 0x01000000

	FlagFailInitSG = FlagFailInitSGNaN | FlagFailInitSGMoments | FlagFailInitTooSmall | FlagFailInitTooLarge
	FlagFailFitSG  = FlagFailFitSGUnknown | FlagFailFitSGRadius
)

var flagNames = []struct {
	flag int64
	name string
}{
	{FlagFailInitTooLarge, "FAIL_INIT_TOO_LARGE"},
	{FlagFailInitTooSmall, "FAIL_INIT_TOO_SMALL"},
	{FlagFailInitSGNaN, "FAIL_INIT_SG_NAN"},
	{FlagFailInitSGMoments, "FAIL_INIT_SG_MOMENTS"},
	{FlagFailFitSGRadius, "FAIL_FIT_SG_RADIUS"},
	{FlagFailFitSGUnknown, "FAIL_FIT_SG_UNKNOWN"},
}

// StatusString renders a status word as "OK" or a "|"-joined flag list.
func StatusString(status int64) string {
	if status == 0 {
		return "OK"
	}
	var parts []string
	for _, f := range flagNames {
		if status&f.flag != 0 {
			parts = append(parts, f.name)
			status &^= f.flag
		}
	}
	if status != 0 {
		parts = append(parts, "UNKNOWN")
	}
	return strings.Join(parts, "|")
}
