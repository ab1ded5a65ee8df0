package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// CloudinaryStore uploads assets to a Cloudinary product environment.
type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryStore(cloudName, apiKey, apiSecret, folder string) (*CloudinaryStore, error) {
	if cloudName == "" || apiKey == "" || apiSecret == "" {
		return nil, errors.New("cloudinary credentials are incomplete")
	}
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("create cloudinary client: %w", err)
	}
	cld.Config.URL.Secure = true
	return &CloudinaryStore{cld: cld, folder: folder}, nil
}

// resourceType maps an upload kind onto Cloudinary's resource types. Audio
// is stored as video.
func resourceType(k Kind) string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo, KindAudio:
		return "video"
	default:
		return "raw"
	}
}

func (s *CloudinaryStore) Put(ctx context.Context, in StoreInput) (*Asset, error) {
	folder := in.Folder
	if s.folder != "" {
		folder = s.folder + "/" + in.Folder
	}
	resp, err := s.cld.Upload.Upload(ctx, in.Content, uploader.UploadParams{
		PublicID:       in.Name,
		Folder:         folder,
		ResourceType:   resourceType(in.Kind),
		UniqueFilename: api.Bool(false),
		Overwrite:      api.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("cloudinary upload: %w", err)
	}
	if resp.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary upload: %s", resp.Error.Message)
	}

	asset := &Asset{URL: resp.SecureURL, Width: resp.Width, Height: resp.Height}
	if raw, ok := resp.Response.(map[string]any); ok {
		if d, ok := raw["duration"].(float64); ok {
			asset.Duration = d
		}
	}
	return asset, nil
}
