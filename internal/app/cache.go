package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"whisperer/internal/config"
)

const tempPrefix = "RecordTemp_"

// cleanupOldTempFiles removes temp audio left behind by a previous run.
func cleanupOldTempFiles(dir string, log *slog.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn("read temp dir failed", "dir", dir, "err", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			log.Warn("remove stale temp file failed", "path", path, "err", err)
		} else {
			log.Debug("removed stale temp file", "path", path)
		}
	}
}

// handleCache archives the recording, the uploaded file and the raw response
// when KEEP_CACHE is on, and deletes the temp files otherwise.
func handleCache(cfg config.Config, now time.Time, wavPath, outPath string, uploadOk bool, resBody []byte, log *slog.Logger) {
	if !cfg.KeepCache || cfg.CacheDir == "" {
		for _, p := range []string{wavPath, outPath} {
			if p != "" {
				_ = os.Remove(p)
			}
		}
		return
	}

	base := fmt.Sprintf("audio-%s", now.Format("2006-01-02-15.04.05.000"))
	for _, p := range []string{wavPath, outPath} {
		if p == "" {
			continue
		}
		dst := filepath.Join(cfg.CacheDir, base+filepath.Ext(p))
		if err := os.Rename(p, dst); err != nil {
			log.Warn("cache rename failed", "from", p, "to", dst, "err", err)
			_ = os.Remove(p)
		}
	}
	if uploadOk && len(resBody) > 0 {
		jsonPath := filepath.Join(cfg.CacheDir, base+".json")
		if err := os.WriteFile(jsonPath, resBody, 0644); err != nil {
			log.Warn("cache write failed", "path", jsonPath, "err", err)
		}
	}
}
