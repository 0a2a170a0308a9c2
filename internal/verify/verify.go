package verify

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/pokerjest/modlistAutoTool/internal/model"
	"github.com/spf13/afero"
)

// Algorithm 校验方式，与配置 download.hash_algorithm 对应
type Algorithm string

const (
	AlgoXXH64  Algorithm = "xxh64"  // modlist 标准哈希: base64(LE uint64(xxh64 seed 0))
	AlgoSHA256 Algorithm = "sha256" // 部分清单用 hex sha256
	AlgoSize   Algorithm = "size"   // 只比对文件大小
	AlgoSkip   Algorithm = "skip"   // 传输成功即算完成
)

var (
	ErrHashMismatch = errors.New("hash mismatch")
	ErrSizeMismatch = errors.New("size mismatch")
)

func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(s)) {
	case AlgoXXH64:
		return AlgoXXH64, nil
	case AlgoSHA256:
		return AlgoSHA256, nil
	case AlgoSize:
		return AlgoSize, nil
	case AlgoSkip:
		return AlgoSkip, nil
	}
	return "", fmt.Errorf("unknown hash algorithm %q", s)
}

// CheckManifestShape 校验配置的算法和清单声明的哈希长相是否匹配，开跑前快速失败
// xxh64 的 base64 固定 12 字符，sha256 是 64 位 hex
func CheckManifestShape(algo Algorithm, records []model.DownloadRecord) error {
	if algo == AlgoSize || algo == AlgoSkip {
		return nil
	}
	for _, rec := range records {
		if rec.ExpectedHash == "" {
			continue
		}
		switch algo {
		case AlgoXXH64:
			raw, err := base64.StdEncoding.DecodeString(rec.ExpectedHash)
			if err != nil || len(raw) != 8 {
				return fmt.Errorf("manifest hash %q for %s does not look like xxh64", rec.ExpectedHash, rec.ID)
			}
		case AlgoSHA256:
			if len(rec.ExpectedHash) != 64 {
				return fmt.Errorf("manifest hash %q for %s does not look like sha256", rec.ExpectedHash, rec.ID)
			}
			if _, err := hex.DecodeString(rec.ExpectedHash); err != nil {
				return fmt.Errorf("manifest hash %q for %s does not look like sha256", rec.ExpectedHash, rec.ID)
			}
		}
		// 只抽查第一条带哈希的记录就够了
		return nil
	}
	return nil
}

// Verifier computes content digests and gates promotion of downloaded files.
type Verifier struct {
	fs   afero.Fs
	algo Algorithm
}

func New(fs afero.Fs, algo Algorithm) *Verifier {
	return &Verifier{fs: fs, algo: algo}
}

func (v *Verifier) Algorithm() Algorithm {
	return v.algo
}

// Digest computes the configured digest of a file on disk.
func (v *Verifier) Digest(path string) (string, error) {
	f, err := v.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	switch v.algo {
	case AlgoSHA256:
		h := sha256.New()
		if _, err := io.Copy(h, f); err != nil {
			return "", err
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	default:
		// xxh64, seed 0，小端序 uint64 再 base64，与 modlist 工具一致
		h := xxhash.New()
		if _, err := io.Copy(h, f); err != nil {
			return "", err
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], h.Sum64())
		return base64.StdEncoding.EncodeToString(buf[:]), nil
	}
}

// Matches reports whether an on-disk file still satisfies the record.
// dedup/resume 过滤器用它复查已完成的文件
func (v *Verifier) Matches(path string, rec model.DownloadRecord) (bool, error) {
	switch v.algo {
	case AlgoSkip:
		ok, err := afero.Exists(v.fs, path)
		return ok, err
	case AlgoSize:
		return v.sizeMatches(path, rec)
	default:
		if rec.ExpectedHash == "" {
			return v.sizeMatches(path, rec)
		}
		digest, err := v.Digest(path)
		if err != nil {
			return false, err
		}
		return digest == rec.ExpectedHash, nil
	}
}

func (v *Verifier) sizeMatches(path string, rec model.DownloadRecord) (bool, error) {
	info, err := v.fs.Stat(path)
	if err != nil {
		return false, err
	}
	if rec.ExpectedSize <= 0 {
		// 大小未知时退化为"文件存在"
		return true, nil
	}
	return info.Size() == rec.ExpectedSize, nil
}

// Promote verifies a finished temp file and atomically moves it to destPath.
// 校验不过时删掉临时文件并返回 ErrHashMismatch/ErrSizeMismatch，
// 绝不把未通过校验的内容发布到最终文件名下
func (v *Verifier) Promote(tempPath, destPath string, rec model.DownloadRecord) (string, error) {
	verifiedHash := ""

	switch {
	case v.algo == AlgoSkip:
		// 放弃校验，传输成功即促升 (文档化的弱保证)
	case v.algo == AlgoSize || rec.ExpectedHash == "":
		ok, err := v.sizeMatches(tempPath, rec)
		if err != nil {
			v.discard(tempPath)
			return "", err
		}
		if !ok {
			v.discard(tempPath)
			return "", ErrSizeMismatch
		}
	default:
		digest, err := v.Digest(tempPath)
		if err != nil {
			v.discard(tempPath)
			return "", err
		}
		if digest != rec.ExpectedHash {
			v.discard(tempPath)
			return "", fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, rec.ExpectedHash, digest)
		}
		verifiedHash = digest
	}

	if err := v.fs.Rename(tempPath, destPath); err != nil {
		v.discard(tempPath)
		return "", fmt.Errorf("failed to promote %s: %w", destPath, err)
	}
	return verifiedHash, nil
}

func (v *Verifier) discard(path string) {
	_ = v.fs.Remove(path)
}
