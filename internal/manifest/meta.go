package manifest

import "strings"

// ParseMeta parses the ini-ish Meta blob of an archive entry.
// 形如:
//
//	[General]
//	gameName=skyrimspecialedition
//	modID=12604
//	fileID=35407
//
// 小节头忽略，非 key=value 行忽略
func ParseMeta(meta string) map[string]string {
	result := make(map[string]string)
	for _, line := range strings.Split(meta, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "[") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		result[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return result
}
