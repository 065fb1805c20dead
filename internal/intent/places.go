package intent

import "strings"

// prefectures covers all 47 prefecture names without the 都/道/府/県 suffix
// so both "東京" and "東京都" match.
var prefectures = []string{
	"北海道", "青森", "岩手", "宮城", "秋田", "山形", "福島",
	"茨城", "栃木", "群馬", "埼玉", "千葉", "東京", "神奈川",
	"新潟", "富山", "石川", "福井", "山梨", "長野", "岐阜",
	"静岡", "愛知", "三重", "滋賀", "京都", "大阪", "兵庫",
	"奈良", "和歌山", "鳥取", "島根", "岡山", "広島", "山口",
	"徳島", "香川", "愛媛", "高知", "福岡", "佐賀", "長崎",
	"熊本", "大分", "宮崎", "鹿児島", "沖縄",
}

// landmarks covers well-known city, ward and station names that show up in
// utterances without a prefecture. Romaji variants are lowercase because the
// classifier lowercases input before matching.
var landmarks = []string{
	"渋谷", "新宿", "池袋", "原宿", "秋葉原", "銀座", "上野", "浅草",
	"品川", "恵比寿", "中野", "吉祥寺", "下北沢", "お台場", "六本木",
	"横浜", "川崎", "名古屋", "札幌", "仙台", "神戸", "難波", "梅田",
	"天神", "博多",
	"shibuya", "shinjuku", "ikebukuro", "akihabara", "harajuku",
	"ginza", "ueno", "asakusa", "roppongi", "yokohama", "osaka",
	"kyoto", "tokyo", "nagoya", "sapporo", "fukuoka", "kobe",
}

// HasPlaceToken reports whether the utterance contains a recognized place
// name: a prefecture, a well-known landmark, or a XX駅 station reference.
// Used both by the Product exclusion rule and by the pipeline to decide
// whether a Proximity utterance needs a location clarification first.
func HasPlaceToken(utterance string) bool {
	u := strings.ToLower(utterance)
	for _, p := range prefectures {
		if strings.Contains(u, p) {
			return true
		}
	}
	for _, l := range landmarks {
		if strings.Contains(u, l) {
			return true
		}
	}
	// Anything immediately followed by 駅 reads as a station name.
	if i := strings.Index(u, "駅"); i > 0 {
		return true
	}
	return false
}
