package wells

import (
	"regexp"
	"strings"
)

var (
	driveFilePath = regexp.MustCompile(`/d/([a-zA-Z0-9_-]{10,})`)
	driveIDParam  = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]{10,})`)
)

// GalleryNotice tells the page which hint to show above the photos.
type GalleryNotice string

const (
	// NoticeColumnMissing: the sheet has no "Link da Foto" column.
	NoticeColumnMissing GalleryNotice = "column_missing"
	// NoticeSelected: a map click narrowed the gallery to one well.
	NoticeSelected GalleryNotice = "selected"
	// NoticeClickForPhotos: nothing to show yet, clicking a well may help.
	NoticeClickForPhotos GalleryNotice = "click_for_photos"
	// NoticeClickToFocus: photos of every filtered well are shown.
	NoticeClickToFocus GalleryNotice = "click_to_focus"
)

// GalleryItem is one photo.
type GalleryItem struct {
	Thumb   string `json:"thumb"`
	Src     string `json:"src"`
	Caption string `json:"caption"`
}

// GalleryView is the gallery for one filter state and optional map click.
type GalleryView struct {
	Items    []GalleryItem `json:"items"`
	Notice   GalleryNotice `json:"notice"`
	AutoOpen bool          `json:"autoOpen"`
	// Selected is the row picked by the click, when one was found.
	Selected *Record `json:"selected,omitempty"`
}

// Click is a map click position.
type Click struct {
	Lat float64
	Lon float64
}

// DriveID extracts the Google Drive file id from a sharing link.
func DriveID(link string) (string, bool) {
	link = strings.TrimSpace(link)
	if m := driveFilePath.FindStringSubmatch(link); m != nil {
		return m[1], true
	}
	if m := driveIDParam.FindStringSubmatch(link); m != nil {
		return m[1], true
	}
	return "", false
}

// DriveImageURLs returns the thumbnail and full-size image URLs for a file id.
func DriveImageURLs(id string) (thumb, full string) {
	base := "https://drive.google.com/thumbnail?id=" + id
	return base + "&sz=w450", base + "&sz=w2048"
}

// Gallery lists the photos of the filtered wells. With a click, only the
// photos of the nearest well are kept. A click only counts when the sheet
// has both coordinate columns; when no filtered well has coordinates the
// click is still reported but every filtered photo stays.
func Gallery(ds *Dataset, click *Click) GalleryView {
	view := GalleryView{Items: []GalleryItem{}}
	if !ds.Has(ColFoto) {
		view.Notice = NoticeColumnMissing
		return view
	}

	records := ds.Records
	clicked := click != nil && ds.Has(ColLatitude) && ds.Has(ColLongitude)
	if clicked {
		if rec, ok := Nearest(records, click.Lat, click.Lon); ok {
			records = []Record{rec}
			view.Selected = &rec
		}
	}

	seen := make(map[string]struct{})
	for _, r := range records {
		link, ok := r.Cells[ColFoto]
		if !ok {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}

		item := GalleryItem{Thumb: link, Src: link, Caption: caption(r)}
		if id, ok := DriveID(link); ok {
			item.Thumb, item.Src = DriveImageURLs(id)
		}
		view.Items = append(view.Items, item)
	}

	switch {
	case clicked && len(view.Items) > 0:
		view.Notice = NoticeSelected
		view.AutoOpen = true
	case len(view.Items) == 0:
		view.Notice = NoticeClickForPhotos
	default:
		view.Notice = NoticeClickToFocus
	}
	return view
}

func caption(r Record) string {
	parts := make([]string, 0, 2)
	for _, col := range []string{ColLocalidade, ColBairro} {
		if v, ok := r.Cells[col]; ok {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " • ")
}
