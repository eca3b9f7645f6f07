package notify

import "github.com/ent0n29/mamashield/internal/lang"

var farmTips = map[string]map[lang.Language]string{
	"picking": {
		lang.English:  "During tea picking: Take breaks every hour, stay hydrated (drink mwaiti/water), avoid heavy lifting. Ask supervisor for lighter tasks if tired.",
		lang.Kalenjin: "Wakati wa kuchuma chai: Rest often, drink mwaiti (milk) na maji, don't carry heavy baskets when pregnant. Tell supervisor if you feel tired.",
	},
	"general": {
		lang.English:  "Tea farm moms: Wear comfortable shoes, use sun protection, drink plenty of fluids. Report any dizziness to CHW at farm clinic.",
		lang.Kalenjin: "Mama wa shamba chai: Drink mwaiti, rest when tired, protect from sun. If dizzy, go to clinic haraka (quickly).",
	},
}

// FarmTip returns season-specific advice for pregnant tea workers. Unknown
// seasons fall back to general tips, unknown languages to English.
func FarmTip(season string, language lang.Language) string {
	tips, ok := farmTips[season]
	if !ok {
		tips = farmTips["general"]
	}
	if tip, ok := tips[language]; ok {
		return tip
	}
	return tips[lang.English]
}
