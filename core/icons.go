package core

// Marker icons for supports on the map.
const (
	IconNotVisible = "bad-relay.png"
	IconVisible    = "good-relay.png"
)

var markerIcons = map[OperatorFlags]string{
	FlagBouygues:                                   "marker-b.png",
	FlagFree:                                       "marker-f.png",
	FlagOrange:                                     "marker-o.png",
	FlagSFR:                                        "marker-s.png",
	FlagBouygues | FlagFree:                        "marker-fb.png",
	FlagBouygues | FlagOrange:                      "marker-bo.png",
	FlagBouygues | FlagSFR:                         "marker-sb.png",
	FlagFree | FlagOrange:                          "marker-fo.png",
	FlagFree | FlagSFR:                             "marker-sf.png",
	FlagOrange | FlagSFR:                           "marker-so.png",
	FlagBouygues | FlagFree | FlagOrange:           "marker-fbo.png",
	FlagBouygues | FlagFree | FlagSFR:              "marker-sfb.png",
	FlagBouygues | FlagOrange | FlagSFR:            "marker-sbo.png",
	FlagFree | FlagOrange | FlagSFR:                "marker-sfo.png",
	FlagBouygues | FlagFree | FlagOrange | FlagSFR: "marker-sfbo.png",
}

// IconFor picks the marker of a support from its coverage. A support with
// no visible operator gets IconNotVisible; one whose visible operators are
// all unknown carriers gets IconVisible.
func IconFor(cov Coverage) string {
	if !cov.VisibleOverall() {
		return IconNotVisible
	}
	if icon, ok := markerIcons[FlagsOf(cov.Visible)]; ok {
		return icon
	}
	return IconVisible
}
