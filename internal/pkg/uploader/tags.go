package uploader

import (
	"strconv"

	"github.com/archivetheweb/atwworker/internal/pkg/models"
)

// baseTags returns the tags every upload carries regardless of artifact
// kind: App-Name, App-Version, Url, Original-Url, Timestamp, Crawl-Depth,
// Render-With.
func baseTags(appName, appVersion string, info models.ArchiveInfo, originalURL string) []Tag {
	return []Tag{
		{Name: "App-Name", Value: appName},
		{Name: "App-Version", Value: appVersion},
		{Name: "Url", Value: info.URL},
		{Name: "Original-Url", Value: originalURL},
		{Name: "Timestamp", Value: strconv.FormatInt(info.Timestamp.Unix(), 10)},
		{Name: "Crawl-Depth", Value: strconv.Itoa(int(info.Depth))},
		{Name: "Render-With", Value: renderWithID},
	}
}

func warcTags(appName, appVersion string, info models.ArchiveInfo, originalURL string) []Tag {
	tags := baseTags(appName, appVersion, info, originalURL)
	return append(tags,
		Tag{Name: "Content-Type", Value: "application/warc"},
		Tag{Name: "Content-Encoding", Value: "gzip"},
	)
}

func screenshotTags(appName, appVersion string, info models.ArchiveInfo, originalURL string) []Tag {
	tags := baseTags(appName, appVersion, info, originalURL)
	return append(tags, Tag{Name: "Content-Type", Value: "image/png"})
}
