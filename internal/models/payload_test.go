package models

import (
	"bytes"
	"testing"

	"content-tasks/internal/faults"
)

const validUUID = "5f0c3a52-9f6e-4f7a-8f46-1f2b9a9c0d11"

func TestValidateRejectsMissingVariant(t *testing.T) {
	for _, kind := range []string{
		KindUploadProfileImage,
		KindUploadUserFile,
		KindDeleteUserFile,
		KindUploadPostFile,
		KindDeletePostFile,
		KindGeneratePostThumbnail,
		KindRenderMarkdown,
		KindWarmMarkdownCache,
		KindInvalidateMarkdown,
		KindCleanupTokens,
		KindReindexPosts,
	} {
		if err := (Payload{}).Validate(kind); !faults.IsValidation(err) {
			t.Fatalf("kind %s: expected validation fault for empty payload, got %v", kind, err)
		}
	}
}

func TestValidateUnknownKind(t *testing.T) {
	err := (Payload{}).Validate("make_coffee")
	if !faults.IsValidation(err) {
		t.Fatalf("expected validation fault, got %v", err)
	}
}

func TestValidateUserFile(t *testing.T) {
	good := UserFilePayload{
		UserID:      validUUID,
		Filename:    "me.png",
		Data:        []byte("bytes"),
		ContentType: "image/png",
		Category:    CategoryAvatar,
	}

	if err := (Payload{UserFile: &good}).Validate(KindUploadUserFile); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}

	bad := good
	bad.UserID = "42"
	if err := (Payload{UserFile: &bad}).Validate(KindUploadUserFile); !faults.IsValidation(err) {
		t.Fatalf("malformed uuid accepted: %v", err)
	}

	bad = good
	bad.ContentType = "application/pdf"
	if err := (Payload{UserFile: &bad}).Validate(KindUploadUserFile); !faults.IsValidation(err) {
		t.Fatalf("unsupported content type accepted: %v", err)
	}

	bad = good
	bad.Category = CategoryThumbnail
	if err := (Payload{UserFile: &bad}).Validate(KindUploadUserFile); !faults.IsValidation(err) {
		t.Fatalf("post-only category accepted for user file: %v", err)
	}

	bad = good
	bad.Data = nil
	if err := (Payload{UserFile: &bad}).Validate(KindUploadUserFile); !faults.IsValidation(err) {
		t.Fatalf("empty file accepted: %v", err)
	}

	bad = good
	bad.Data = bytes.Repeat([]byte{0xff}, MaxImageBytes+1)
	if err := (Payload{UserFile: &bad}).Validate(KindUploadUserFile); !faults.IsValidation(err) {
		t.Fatalf("oversized file accepted: %v", err)
	}
}

func TestValidateProfileImageURL(t *testing.T) {
	pl := ProfileImagePayload{UserID: validUUID, ImageURL: "ftp://example.com/a.png"}
	if err := (Payload{ProfileImage: &pl}).Validate(KindUploadProfileImage); !faults.IsValidation(err) {
		t.Fatalf("non-http url accepted: %v", err)
	}

	pl.ImageURL = "https://example.com/a.png"
	if err := (Payload{ProfileImage: &pl}).Validate(KindUploadProfileImage); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
}

func TestIsSupportedImageType(t *testing.T) {
	for _, ct := range []string{"image/jpeg", "image/jpg", "image/png", "image/webp", "image/gif", "IMAGE/PNG"} {
		if !IsSupportedImageType(ct) {
			t.Fatalf("%s should be supported", ct)
		}
	}
	for _, ct := range []string{"image/svg+xml", "text/html", ""} {
		if IsSupportedImageType(ct) {
			t.Fatalf("%s should be rejected", ct)
		}
	}
}
