package fetch

import "github.com/PravakarDas/YT-Playlist-Downloader/internal/job"

// FormatString maps a quality to a yt-dlp format selector for MP4 output.
// Progressive single-file streams are preferred so no stray audio files are
// left next to the video.
func FormatString(quality job.Quality) string {
	switch quality {
	case job.QualityLow:
		return "worst[ext=mp4]/worst"
	case job.QualityMedium:
		return "best[height<=720][ext=mp4]/best[ext=mp4]/best"
	default:
		return "best[ext=mp4]/best"
	}
}
