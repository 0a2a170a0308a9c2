package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/pokerjest/modlistAutoTool/internal/model"
)

// ErrManifest 清单本身无法读取/解析时返回，属于致命错误
var ErrManifest = errors.New("manifest error")

// archiveEntry 对应 modlist JSON 里 Archives 数组的一项
// 未知字段一律忽略，保证对上游格式升级的前向兼容
type archiveEntry struct {
	Hash  string          `json:"Hash"`
	Name  string          `json:"Name"`
	Size  int64           `json:"Size"`
	Meta  string          `json:"Meta"`
	State json.RawMessage `json:"State"`
}

type archiveState struct {
	ModID    json.Number `json:"ModID"`
	FileID   json.Number `json:"FileID"`
	GameName string      `json:"GameName"`
	Version  string      `json:"Version"`
}

type modlistFile struct {
	Archives []archiveEntry `json:"Archives"`
}

// Skipped 一条因缺字段被跳过的坏条目，带上身份方便上报和落库
type Skipped struct {
	ID   string // 条目名，缺名时退到 "entry-<下标>"
	Name string
}

// Parse reads a modlist manifest and derives download records in manifest order.
// 单条缺字段的条目跳过并带身份返回，不会让整个解析失败
func Parse(path string) ([]model.DownloadRecord, []Skipped, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrManifest, err)
	}

	var ml modlistFile
	if err := json.Unmarshal(data, &ml); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to decode JSON: %v", ErrManifest, err)
	}

	records := make([]model.DownloadRecord, 0, len(ml.Archives))
	var skipped []Skipped

	for i, entry := range ml.Archives {
		rec, ok := deriveRecord(entry)
		if !ok {
			id := entry.Name
			if id == "" {
				id = fmt.Sprintf("entry-%d", i)
			}
			skipped = append(skipped, Skipped{ID: id, Name: entry.Name})
			log.Printf("manifest: skipping entry %d (%q): missing mod/file identifiers", i, entry.Name)
			continue
		}
		records = append(records, rec)
	}

	return records, skipped, nil
}

func deriveRecord(entry archiveEntry) (model.DownloadRecord, bool) {
	var st archiveState
	if len(entry.State) > 0 {
		// State 解析失败不致命，Meta 里往往还有一份 modID/fileID
		_ = json.Unmarshal(entry.State, &st)
	}

	meta := ParseMeta(entry.Meta)

	modID := st.ModID.String()
	fileID := st.FileID.String()
	game := strings.ToLower(st.GameName)

	// Meta 兜底 (旧版清单 State 不完整时)
	if modID == "" || modID == "0" {
		modID = meta["modID"]
	}
	if fileID == "" || fileID == "0" {
		fileID = meta["fileID"]
	}
	if game == "" {
		game = strings.ToLower(meta["gameName"])
	}

	if modID == "" || modID == "0" || fileID == "" || fileID == "0" || entry.Name == "" {
		return model.DownloadRecord{}, false
	}

	return model.DownloadRecord{
		ID:           modID + "-" + fileID,
		ModID:        modID,
		FileID:       fileID,
		GameName:     game,
		Name:         entry.Name,
		ExpectedHash: entry.Hash,
		ExpectedSize: entry.Size,
		Version:      st.Version,
		Meta:         meta,
	}, true
}

// ModPageURL builds the public mod page URL for a record.
// delegate 模式把这个地址交给外部浏览器，dump-manifest 也用它
func ModPageURL(rec model.DownloadRecord, baseURL string) string {
	baseURL = strings.TrimSuffix(baseURL, "/")
	return fmt.Sprintf("%s/%s/mods/%s?tab=files&file_id=%s", baseURL, rec.GameName, rec.ModID, rec.FileID)
}
