package handlers

import (
	"errors"

	"github.com/bkrepo/registry/reference"
	"github.com/bkrepo/registry/registry/api/errcode"
	v2 "github.com/bkrepo/registry/registry/api/v2"
	"github.com/bkrepo/registry/registry/auth"
	"github.com/bkrepo/registry/registry/storage"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
)

// appendStorageError translates an error returned by the registry storage
// into the API error sent to the client.
func (ctx *Context) appendStorageError(err error) {
	ctx.Errors = append(ctx.Errors, ctx.storageError(err))
}

func (ctx *Context) storageError(err error) error {
	var (
		repoNotFound    storage.ErrRepoNotFound
		nameUnknown     storage.ErrNameUnknown
		manifestUnknown storage.ErrManifestUnknown
		listUnknown     storage.ErrManifestListReferenceUnknown
		blobUnknown     storage.ErrBlobUnknown
		uploadUnknown   storage.ErrBlobUploadUnknown
		malformed       storage.ErrMalformedManifest
		invalidDigest   storage.ErrInvalidDigest
		syncFailed      storage.ErrSyncManifestFailed
		unauthorized    storage.ErrUnauthorized
	)

	switch {
	case errors.As(err, &unauthorized):
		if auth.UserFromContext(ctx).IsAnonymous() {
			return errcode.ErrorCodeUnauthorized.WithDetail(unauthorized.Error())
		}
		return errcode.ErrorCodeDenied.WithDetail(unauthorized.Error())
	case errors.As(err, &repoNotFound):
		return v2.ErrorCodeNameUnknown.WithDetail(map[string]string{"name": ctx.Artifact.Name()})
	case errors.As(err, &nameUnknown):
		return v2.ErrorCodeNameUnknown.WithDetail(map[string]string{"name": nameUnknown.Name})
	case errors.As(err, &listUnknown):
		return v2.ErrorCodeManifestUnknown.WithDetail(listUnknown.Digests)
	case errors.As(err, &manifestUnknown):
		return v2.ErrorCodeManifestUnknown.WithDetail(map[string]string{"name": manifestUnknown.Name, "reference": manifestUnknown.Reference})
	case errors.As(err, &syncFailed):
		return v2.ErrorCodeManifestBlobUnknown.WithDetail(syncFailed.Missing)
	case errors.As(err, &blobUnknown):
		return v2.ErrorCodeBlobUnknown.WithDetail(blobUnknown.Digest)
	case errors.As(err, &uploadUnknown):
		return v2.ErrorCodeBlobUploadUnknown.WithDetail(uploadUnknown.ID)
	case errors.As(err, &malformed):
		return v2.ErrorCodeManifestInvalid.WithDetail(malformed.Error())
	case errors.As(err, &invalidDigest):
		return v2.ErrorCodeDigestInvalid.WithDetail(invalidDigest.Error())
	case errors.Is(err, reference.ErrDigestInvalid):
		return v2.ErrorCodeDigestInvalid.WithDetail(err.Error())
	case errors.Is(err, reference.ErrTagInvalid):
		return v2.ErrorCodeTagInvalid.WithDetail(err.Error())
	case errors.Is(err, reference.ErrNameInvalid):
		return v2.ErrorCodeNameInvalid.WithDetail(err.Error())
	case errors.Is(err, storagedriver.ErrAppendIDNotFound):
		return v2.ErrorCodeBlobUploadUnknown
	default:
		return errcode.FromUnknownError(err)
	}
}
