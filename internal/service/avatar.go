// Package service holds thin clients for external collaborators: the
// Cloudinary image host and the RabbitMQ event publisher.
package service

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// AvatarService uploads user avatars to Cloudinary and returns the hosted
// URL.  Image transformation and storage stay entirely on the host side.
type AvatarService struct {
	cld *cloudinary.Cloudinary
}

func NewAvatarService(cloudName, apiKey, apiSecret string) (*AvatarService, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	return &AvatarService{cld: cld}, nil
}

// Upload stores the file under a stable public id so re-uploads for the
// same user replace the previous avatar.  It returns the secure URL.
func (s *AvatarService) Upload(ctx context.Context, file multipart.File, publicID string) (string, error) {
	fileBytes, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	res, err := s.cld.Upload.Upload(ctx, fileBytes, uploader.UploadParams{
		PublicID:     publicID,
		Folder:       "contacts/avatars",
		ResourceType: "image",
		Overwrite:    api.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}
	return res.SecureURL, nil
}
