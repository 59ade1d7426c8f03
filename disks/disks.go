// Package disks defines predefined TFS image profiles: named sets of layout
// parameters the formatter accepts. Profiles live in an embedded CSV table so
// adding one doesn't touch code.
package disks

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
)

// ImageProfile is one row of the profile table.
type ImageProfile struct {
	Name          string `csv:"name"`
	Slug          string `csv:"slug"`
	BlockSize     uint32 `csv:"block_size"`
	MaxInodes     uint32 `csv:"max_inodes"`
	MaxDataBlocks uint32 `csv:"max_data_blocks"`
	Notes         string `csv:"notes"`
}

// TotalSizeBytes gives the size of an image formatted with this profile,
// counting the superblock, bitmaps, and inode table alongside the data region.
func (p *ImageProfile) TotalSizeBytes() int64 {
	inodeTableBlocks := (p.MaxInodes*128 + p.BlockSize - 1) / p.BlockSize
	totalBlocks := 3 + inodeTableBlocks + p.MaxDataBlocks
	return int64(totalBlocks) * int64(p.BlockSize)
}

//go:embed image-profiles.csv
var imageProfilesRawCSV string
var imageProfiles = make(map[string]ImageProfile)

// GetPredefinedProfile looks up a profile by its slug.
func GetPredefinedProfile(slug string) (ImageProfile, error) {
	profile, ok := imageProfiles[slug]
	if ok {
		return profile, nil
	}

	err := fmt.Errorf("no predefined image profile exists with slug %q", slug)
	return ImageProfile{}, err
}

// Slugs returns every known profile slug, sorted.
func Slugs() []string {
	slugs := make([]string, 0, len(imageProfiles))
	for slug := range imageProfiles {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

func init() {
	reader := strings.NewReader(imageProfilesRawCSV)
	err := gocsv.UnmarshalToCallback(
		reader,
		func(row ImageProfile) error {
			_, exists := imageProfiles[row.Slug]
			if exists {
				return fmt.Errorf(
					"duplicate definition for profile %q found on row %d",
					row.Slug,
					len(imageProfiles)+1,
				)
			}
			imageProfiles[row.Slug] = row
			return nil
		},
	)
	if err != nil && err != io.EOF {
		panic(err)
	}
}
