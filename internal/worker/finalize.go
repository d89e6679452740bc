package worker

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"podforge/internal/db"
	"podforge/internal/models"
)

var execCommandContext = exec.CommandContext

const (
	mergedFilename = "episode.m4a"
	mergeBitrate   = "128k"
)

// runFinalize assembles the published artifact: ordered downloads, ffmpeg
// merge, duration probe, upload, and the final transactional job update.
// Each step maps its failure to a stable code; scratch files are cleaned up
// best-effort no matter how far the run got.
func (h *TaskHandler) runFinalize(ctx context.Context, job *models.GenerationJob) error {
	workDir := filepath.Join(h.cfg.WorkDir, job.ID)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return stageErrorf(CodeAudioDownload, "failed to create scratch dir: %v", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("scratch cleanup failed")
		}
	}()

	// Downloads occupy the first 40% of progress, one slice per segment.
	files, err := h.downloadSegments(ctx, workDir, job)
	if err != nil {
		return err
	}

	h.reportProgress(job.ID, 50)
	mergedPath, err := mergeSegments(ctx, workDir, files)
	if err != nil {
		return err
	}
	durationSeconds, err := probeDuration(ctx, mergedPath)
	if err != nil {
		return err
	}

	info, err := os.Stat(mergedPath)
	if err != nil {
		return stageErrorf(CodeAudioMerge, "failed to stat merged artifact: %v", err)
	}

	h.reportProgress(job.ID, 80)
	key := fmt.Sprintf("%s/%s", job.ID, mergedFilename)
	if err := h.store.Upload(ctx, mergedPath, key, "audio/mp4"); err != nil {
		return stageErrorf(CodeUpload, "failed to upload merged artifact: %v", err)
	}
	publicURL, err := h.store.ReadURL(key, 0)
	if err != nil {
		return stageErrorf(CodeUpload, "failed to resolve public url: %v", err)
	}

	if _, err := db.FinalizeJob(job.ID, publicURL, durationSeconds, info.Size()); err != nil {
		return stageErrorf(CodeFinalUpdate, "failed to record finalized job: %v", err)
	}
	return nil
}

// downloadSegments fetches every audio segment into the scratch dir,
// strictly preserving array order: segment i becomes local file i, and that
// ordering is what the merge consumes. Any single failure aborts the stage;
// there is no partial merge. The context is honored between segments so a
// cancelled job stops at the next boundary.
func (h *TaskHandler) downloadSegments(ctx context.Context, workDir string, job *models.GenerationJob) ([]string, error) {
	files := make([]string, 0, len(job.Audio))
	for i, seg := range job.Audio {
		if err := ctx.Err(); err != nil {
			return nil, stageErrorf(CodeAudioDownload, "cancelled before segment %d: %v", i, err)
		}

		path := filepath.Join(workDir, fmt.Sprintf("seg-%04d.mp3", i))
		if err := h.downloadFile(ctx, seg.URL, path); err != nil {
			return nil, stageErrorf(CodeAudioDownload, "segment %d (%s): %v", i, seg.URL, err)
		}
		files = append(files, path)

		h.reportProgress(job.ID, (i+1)*40/len(job.Audio))
	}
	return files, nil
}

func (h *TaskHandler) downloadFile(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return err
	}
	return out.Close()
}

// mergeSegments concatenates the ordered local files into one AAC artifact
// via ffmpeg's concat demuxer at a fixed bitrate.
func mergeSegments(ctx context.Context, workDir string, files []string) (string, error) {
	listPath := filepath.Join(workDir, "concat.txt")
	var list strings.Builder
	for _, f := range files {
		fmt.Fprintf(&list, "file '%s'\n", filepath.Base(f))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0644); err != nil {
		return "", stageErrorf(CodeAudioMerge, "failed to write concat list: %v", err)
	}

	outPath := filepath.Join(workDir, mergedFilename)
	cmd := execCommandContext(ctx, "ffmpeg",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:a", "aac",
		"-b:a", mergeBitrate,
		outPath,
	)
	cmd.Dir = workDir

	if output, err := cmd.CombinedOutput(); err != nil {
		return "", stageErrorf(CodeAudioMerge, "ffmpeg failed: %v, output: %s", err, string(output))
	}
	return outPath, nil
}

// probeDuration extracts the total duration of the merged artifact in whole
// seconds, rounded to nearest.
func probeDuration(ctx context.Context, path string) (int, error) {
	cmd := execCommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, stageErrorf(CodeAudioMerge, "ffprobe failed: %v, output: %s", err, string(output))
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, stageErrorf(CodeAudioMerge, "failed to parse ffprobe duration %q: %v", strings.TrimSpace(string(output)), err)
	}
	return int(math.Round(seconds)), nil
}

func (h *TaskHandler) reportProgress(jobID string, progress int) {
	if err := db.UpdateStepProgress(jobID, models.StageFinalize, progress); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("failed to update finalize progress")
	}
}
