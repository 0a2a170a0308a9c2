package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/pokerjest/modlistAutoTool/internal/manifest"
)

// 离线清单检查工具：解析一份 modlist，把每条记录和它的 mod 页面打出来。
// 不碰网络也不碰状态库，用来在正式跑之前确认清单长什么样。
func main() {
	manifestPath := flag.String("manifest", "", "modlist manifest JSON 路径")
	baseURL := flag.String("base-url", "https://www.nexusmods.com", "mod 页面基址")
	flag.Parse()

	if *manifestPath == "" {
		log.Fatal("missing -manifest")
	}

	records, skipped, err := manifest.Parse(*manifestPath)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("%d records (%d malformed entries skipped)\n\n", len(records), len(skipped))
	for _, sk := range skipped {
		fmt.Printf("skipped: %s\n", sk.ID)
	}
	var totalSize int64
	for _, rec := range records {
		fmt.Printf("%-14s %s\n", rec.ID, rec.Name)
		fmt.Printf("               size=%d hash=%s version=%s\n", rec.ExpectedSize, rec.ExpectedHash, rec.Version)
		fmt.Printf("               %s\n", manifest.ModPageURL(rec, *baseURL))
		totalSize += rec.ExpectedSize
	}
	fmt.Printf("\ntotal download size: %.2f GiB\n", float64(totalSize)/(1<<30))
}
