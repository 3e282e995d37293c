package country

// Info describes one country across the three code schemes providers use.
type Info struct {
	Name string
	ISO2 string
	ISO3 string
	UN   string // UN M49 numeric, zero-padded to three digits
}

// countries is the canonical table. Provider adapters keep only small
// fallback maps for their own quirks (e.g. Comtrade's 842 for the US).
var countries = []Info{
	{"Afghanistan", "AF", "AFG", "004"},
	{"Albania", "AL", "ALB", "008"},
	{"Algeria", "DZ", "DZA", "012"},
	{"Angola", "AO", "AGO", "024"},
	{"Argentina", "AR", "ARG", "032"},
	{"Armenia", "AM", "ARM", "051"},
	{"Australia", "AU", "AUS", "036"},
	{"Austria", "AT", "AUT", "040"},
	{"Azerbaijan", "AZ", "AZE", "031"},
	{"Bahrain", "BH", "BHR", "048"},
	{"Bangladesh", "BD", "BGD", "050"},
	{"Belarus", "BY", "BLR", "112"},
	{"Belgium", "BE", "BEL", "056"},
	{"Bolivia", "BO", "BOL", "068"},
	{"Bosnia and Herzegovina", "BA", "BIH", "070"},
	{"Botswana", "BW", "BWA", "072"},
	{"Brazil", "BR", "BRA", "076"},
	{"Brunei", "BN", "BRN", "096"},
	{"Bulgaria", "BG", "BGR", "100"},
	{"Cambodia", "KH", "KHM", "116"},
	{"Cameroon", "CM", "CMR", "120"},
	{"Canada", "CA", "CAN", "124"},
	{"Chile", "CL", "CHL", "152"},
	{"China", "CN", "CHN", "156"},
	{"Colombia", "CO", "COL", "170"},
	{"Costa Rica", "CR", "CRI", "188"},
	{"Croatia", "HR", "HRV", "191"},
	{"Cuba", "CU", "CUB", "192"},
	{"Cyprus", "CY", "CYP", "196"},
	{"Czechia", "CZ", "CZE", "203"},
	{"Democratic Republic of the Congo", "CD", "COD", "180"},
	{"Denmark", "DK", "DNK", "208"},
	{"Dominican Republic", "DO", "DOM", "214"},
	{"Ecuador", "EC", "ECU", "218"},
	{"Egypt", "EG", "EGY", "818"},
	{"Estonia", "EE", "EST", "233"},
	{"Eswatini", "SZ", "SWZ", "748"},
	{"Ethiopia", "ET", "ETH", "231"},
	{"Fiji", "FJ", "FJI", "242"},
	{"Finland", "FI", "FIN", "246"},
	{"France", "FR", "FRA", "250"},
	{"Georgia", "GE", "GEO", "268"},
	{"Germany", "DE", "DEU", "276"},
	{"Ghana", "GH", "GHA", "288"},
	{"Greece", "GR", "GRC", "300"},
	{"Guatemala", "GT", "GTM", "320"},
	{"Hong Kong", "HK", "HKG", "344"},
	{"Hungary", "HU", "HUN", "348"},
	{"Iceland", "IS", "ISL", "352"},
	{"India", "IN", "IND", "356"},
	{"Indonesia", "ID", "IDN", "360"},
	{"Iran", "IR", "IRN", "364"},
	{"Iraq", "IQ", "IRQ", "368"},
	{"Ireland", "IE", "IRL", "372"},
	{"Israel", "IL", "ISR", "376"},
	{"Italy", "IT", "ITA", "380"},
	{"Ivory Coast", "CI", "CIV", "384"},
	{"Japan", "JP", "JPN", "392"},
	{"Jordan", "JO", "JOR", "400"},
	{"Kazakhstan", "KZ", "KAZ", "398"},
	{"Kenya", "KE", "KEN", "404"},
	{"Kuwait", "KW", "KWT", "414"},
	{"Kyrgyzstan", "KG", "KGZ", "417"},
	{"Laos", "LA", "LAO", "418"},
	{"Latvia", "LV", "LVA", "428"},
	{"Lebanon", "LB", "LBN", "422"},
	{"Lithuania", "LT", "LTU", "440"},
	{"Luxembourg", "LU", "LUX", "442"},
	{"Macao", "MO", "MAC", "446"},
	{"Malaysia", "MY", "MYS", "458"},
	{"Malta", "MT", "MLT", "470"},
	{"Mauritius", "MU", "MUS", "480"},
	{"Mexico", "MX", "MEX", "484"},
	{"Moldova", "MD", "MDA", "498"},
	{"Mongolia", "MN", "MNG", "496"},
	{"Montenegro", "ME", "MNE", "499"},
	{"Morocco", "MA", "MAR", "504"},
	{"Mozambique", "MZ", "MOZ", "508"},
	{"Myanmar", "MM", "MMR", "104"},
	{"Namibia", "NA", "NAM", "516"},
	{"Nepal", "NP", "NPL", "524"},
	{"Netherlands", "NL", "NLD", "528"},
	{"New Zealand", "NZ", "NZL", "554"},
	{"Nigeria", "NG", "NGA", "566"},
	{"North Korea", "KP", "PRK", "408"},
	{"North Macedonia", "MK", "MKD", "807"},
	{"Norway", "NO", "NOR", "578"},
	{"Oman", "OM", "OMN", "512"},
	{"Pakistan", "PK", "PAK", "586"},
	{"Panama", "PA", "PAN", "591"},
	{"Papua New Guinea", "PG", "PNG", "598"},
	{"Paraguay", "PY", "PRY", "600"},
	{"Peru", "PE", "PER", "604"},
	{"Philippines", "PH", "PHL", "608"},
	{"Poland", "PL", "POL", "616"},
	{"Portugal", "PT", "PRT", "620"},
	{"Qatar", "QA", "QAT", "634"},
	{"Republic of the Congo", "CG", "COG", "178"},
	{"Romania", "RO", "ROU", "642"},
	{"Russia", "RU", "RUS", "643"},
	{"Rwanda", "RW", "RWA", "646"},
	{"Saudi Arabia", "SA", "SAU", "682"},
	{"Senegal", "SN", "SEN", "686"},
	{"Serbia", "RS", "SRB", "688"},
	{"Singapore", "SG", "SGP", "702"},
	{"Slovakia", "SK", "SVK", "703"},
	{"Slovenia", "SI", "SVN", "705"},
	{"South Africa", "ZA", "ZAF", "710"},
	{"South Korea", "KR", "KOR", "410"},
	{"Spain", "ES", "ESP", "724"},
	{"Sri Lanka", "LK", "LKA", "144"},
	{"Sweden", "SE", "SWE", "752"},
	{"Switzerland", "CH", "CHE", "756"},
	{"Syria", "SY", "SYR", "760"},
	{"Taiwan", "TW", "TWN", "158"},
	{"Tanzania", "TZ", "TZA", "834"},
	{"Thailand", "TH", "THA", "764"},
	{"Tunisia", "TN", "TUN", "788"},
	{"Turkey", "TR", "TUR", "792"},
	{"Uganda", "UG", "UGA", "800"},
	{"Ukraine", "UA", "UKR", "804"},
	{"United Arab Emirates", "AE", "ARE", "784"},
	{"United Kingdom", "GB", "GBR", "826"},
	{"United States", "US", "USA", "840"},
	{"Uruguay", "UY", "URY", "858"},
	{"Uzbekistan", "UZ", "UZB", "860"},
	{"Venezuela", "VE", "VEN", "862"},
	{"Vietnam", "VN", "VNM", "704"},
	{"Zambia", "ZM", "ZMB", "894"},
	{"Zimbabwe", "ZW", "ZWE", "716"},
}

// extraAliases maps additional names (beyond the canonical name and the
// ISO codes) to ISO2. Keys are lowercase. Statistical offices disagree on
// naming, so the World Bank and IMF styles appear here too.
var extraAliases = map[string]string{
	"america":                          "US",
	"united states of america":         "US",
	"u.s.":                             "US",
	"u.s.a.":                           "US",
	"usa":                              "US",
	"uk":                               "GB",
	"great britain":                    "GB",
	"britain":                          "GB",
	"england":                          "GB",
	"korea":                            "KR",
	"republic of korea":                "KR",
	"korea, rep.":                      "KR",
	"korea, dem. people's rep.":        "KP",
	"russian federation":               "RU",
	"people's republic of china":       "CN",
	"prc":                              "CN",
	"mainland china":                   "CN",
	"chinese taipei":                   "TW",
	"taiwan, china":                    "TW",
	"hong kong sar":                    "HK",
	"hong kong, china":                 "HK",
	"macau":                            "MO",
	"czech republic":                   "CZ",
	"holland":                          "NL",
	"the netherlands":                  "NL",
	"türkiye":                          "TR",
	"turkiye":                          "TR",
	"uae":                              "AE",
	"emirates":                         "AE",
	"ksa":                              "SA",
	"viet nam":                         "VN",
	"lao pdr":                          "LA",
	"brunei darussalam":                "BN",
	"burma":                            "MM",
	"cote d'ivoire":                    "CI",
	"côte d'ivoire":                    "CI",
	"venezuela, rb":                    "VE",
	"egypt, arab rep.":                 "EG",
	"iran, islamic rep.":               "IR",
	"slovak republic":                  "SK",
	"kyrgyz republic":                  "KG",
	"moldova, republic of":             "MD",
	"syrian arab republic":             "SY",
	"drc":                              "CD",
	"congo, dem. rep.":                 "CD",
	"democratic republic of congo":     "CD",
	"congo, rep.":                      "CG",
	"eswatini":                         "SZ",
	"swaziland":                        "SZ",
	"bolivia (plurinational state of)": "BO",
}

// Group membership. Fixed constant sets; EU is the 27-member 2020 vintage,
// the euro area is the 20-member set with Croatia.
var groups = map[string][]string{
	"G7": {"CA", "FR", "DE", "IT", "JP", "GB", "US"},
	"G20": {
		"AR", "AU", "BR", "CA", "CN", "DE", "FR", "GB", "ID", "IN",
		"IT", "JP", "KR", "MX", "RU", "SA", "TR", "US", "ZA",
	},
	"BRICS":  {"BR", "RU", "IN", "CN", "ZA"},
	"BRICS+": {"BR", "RU", "IN", "CN", "ZA", "EG", "ET", "IR", "AE", "SA"},
	"EU27": {
		"AT", "BE", "BG", "HR", "CY", "CZ", "DK", "EE", "FI", "FR",
		"DE", "GR", "HU", "IE", "IT", "LV", "LT", "LU", "MT", "NL",
		"PL", "PT", "RO", "SK", "SI", "ES", "SE",
	},
	"EA20": {
		"AT", "BE", "HR", "CY", "EE", "FI", "FR", "DE", "GR", "IE",
		"IT", "LV", "LT", "LU", "MT", "NL", "PT", "SK", "SI", "ES",
	},
	"OECD38": {
		"AU", "AT", "BE", "CA", "CL", "CO", "CR", "CZ", "DK", "EE",
		"FI", "FR", "DE", "GR", "HU", "IS", "IE", "IL", "IT", "JP",
		"KR", "LV", "LT", "LU", "MX", "NL", "NZ", "NO", "PL", "PT",
		"SK", "SI", "ES", "SE", "CH", "TR", "GB", "US",
	},
	"Nordic":      {"DK", "FI", "IS", "NO", "SE"},
	"Scandinavia": {"DK", "NO", "SE"},
	"ASEAN":       {"BN", "KH", "ID", "LA", "MY", "MM", "PH", "SG", "TH", "VN"},
	"Asia-Pacific": {
		"AU", "CN", "HK", "IN", "ID", "JP", "KR", "MY",
		"NZ", "PH", "SG", "TH", "TW", "VN",
	},
}

// groupAliases maps lowercase group spellings to the canonical label.
var groupAliases = map[string]string{
	"g7":                     "G7",
	"g-7":                    "G7",
	"group of seven":         "G7",
	"g7 countries":           "G7",
	"g20":                    "G20",
	"g-20":                   "G20",
	"group of twenty":        "G20",
	"brics":                  "BRICS",
	"brics+":                 "BRICS+",
	"brics plus":             "BRICS+",
	"eu":                     "EU27",
	"eu27":                   "EU27",
	"eu-27":                  "EU27",
	"european union":         "EU27",
	"europe":                 "EU27",
	"eurozone":               "EA20",
	"euro zone":              "EA20",
	"euro area":              "EA20",
	"ea20":                   "EA20",
	"ea-20":                  "EA20",
	"oecd":                   "OECD38",
	"oecd38":                 "OECD38",
	"nordic":                 "Nordic",
	"nordics":                "Nordic",
	"nordic countries":       "Nordic",
	"scandinavia":            "Scandinavia",
	"scandinavian":           "Scandinavia",
	"scandinavian countries": "Scandinavia",
	"asean":                  "ASEAN",
	"southeast asia":         "ASEAN",
	"south east asia":        "ASEAN",
	"asia-pacific":           "Asia-Pacific",
	"asia pacific":           "Asia-Pacific",
	"apac":                   "Asia-Pacific",
}
