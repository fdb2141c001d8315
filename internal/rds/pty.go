package rds

// ptyEU are the programme type names of the European RDS standard.
var ptyEU = [32]string{
	"No program type",
	"News",
	"Current Affairs",
	"Information",
	"Sport",
	"Education",
	"Drama",
	"Culture",
	"Science",
	"Varied",
	"Pop Music",
	"Rock Music",
	"M.O.R. Music",
	"Light Classical",
	"Serious Classical",
	"Other Music",
	"Weather",
	"Finance",
	"Children's Programs",
	"Social Affairs",
	"Religion",
	"Phone-In",
	"Travel",
	"Leisure",
	"Jazz Music",
	"Country Music",
	"National Music",
	"Oldies Music",
	"Folk Music",
	"Documentary",
	"Alarm test",
	"Alarm",
}

// ptyRBDS are the programme type names of the North American RBDS standard.
var ptyRBDS = [32]string{
	"No program type",
	"News",
	"Information",
	"Sports",
	"Talk",
	"Rock",
	"Classic Rock",
	"Adult Hits",
	"Soft Rock",
	"Top 40",
	"Country",
	"Oldies",
	"Soft",
	"Nostalgia",
	"Jazz",
	"Classical",
	"Rhythm and Blues",
	"Soft Rhythm and Blues",
	"Language",
	"Religious Music",
	"Religious Talk",
	"Personality",
	"Public",
	"College",
	"Unassigned 24",
	"Unassigned 25",
	"Unassigned 26",
	"Unassigned 27",
	"Unassigned 28",
	"Weather",
	"Emergency Test",
	"Emergency",
}

var groupNamesA = [16]string{
	"Basic Tuning and Switching Information",
	"Program Item Number and Slow Labeling Codes",
	"Radio Text",
	"Applications Identification for ODA",
	"Clock Time and Date",
	"Transparent Data Channels or ODA",
	"In-House Applications or ODA",
	"Radio Paging or ODA",
	"Traffic Message Channel or ODA",
	"Emergency Warning System or ODA",
	"Program Type Name",
	"Open Data Applications",
	"Open Data Applications",
	"Enhanced Radio Paging or ODA",
	"Enhanced Other Networks Information",
	"Defined in RBDS only",
}

var groupNamesB = [16]string{
	"Basic Tuning and Switching Information",
	"Program Item Number",
	"Radio Text",
	"Open Data Applications",
	"Open Data Applications",
	"Transparent Data Channels or ODA",
	"In-House Applications or ODA",
	"Radio Paging or ODA",
	"Open Data Applications",
	"Open Data Applications",
	"Open Data Applications",
	"Open Data Applications",
	"Open Data Applications",
	"Open Data Applications",
	"Enhanced Other Networks Information",
	"Fast Switching Information",
}

// PTYName returns the programme type name for code pty, using the RBDS table
// when rbds is set.
func PTYName(pty int, rbds bool) string {
	if pty < 0 || pty > 31 {
		return ""
	}
	if rbds {
		return ptyRBDS[pty]
	}
	return ptyEU[pty]
}

// GroupName returns the application carried by a group type and version.
func GroupName(groupType int, versionB bool) string {
	if groupType < 0 || groupType > 15 {
		return ""
	}
	if versionB {
		return groupNamesB[groupType]
	}
	return groupNamesA[groupType]
}

// CallSign derives a North American call sign from a PI code, or returns ""
// when the code is not in the K/W four letter range.
func CallSign(pi uint16) string {
	const (
		kBase = 4096
		wBase = 21672
		wMax  = 39247
	)
	if pi < kBase || pi > wMax {
		return ""
	}
	var cs [4]byte
	v := pi - kBase
	cs[0] = 'K'
	if pi >= wBase {
		cs[0] = 'W'
		v = pi - wBase
	}
	cs[1] = 'A' + byte(v/676)
	v %= 676
	cs[2] = 'A' + byte(v/26)
	cs[3] = 'A' + byte(v%26)
	return string(cs[:])
}
