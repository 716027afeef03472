package storage

import (
	"bytes"
	"context"
	"io"
	"time"

	bindle "github.com/wolfeidau/bindle-store"
	"github.com/wolfeidau/bindle-store/layout"
)

const (
	opCreateParcel = "create_parcel"
	opGetParcel    = "get_parcel"
	opGetLabel     = "get_label"
)

// CreateParcel stores data as the blob of the parcel addressed by
// label.SHA256 and writes label next to it. Bytes are stored unchanged and
// are not verified against the label's digest or size.
//
// The blob is created exclusively; an existing blob fails with a KindIO
// error wrapping fs.ErrExist. If the label cannot be written after the blob
// was, the blob stays and the parcel directory has no label.
func (s *FileStorage) CreateParcel(ctx context.Context, label *bindle.Label, data io.Reader) (err error) {
	start := time.Now()
	defer func() { observe(ctx, opCreateParcel, start, err) }()

	id := label.SHA256
	dataKey := layout.ParcelDataKey(id)
	labelKey := layout.LabelTOMLKey(id)

	encoded, err := bindle.MarshalLabel(label)
	if err != nil {
		return newError(KindUnserializable, opCreateParcel, labelKey, err)
	}

	if err := s.ensureDir(ctx, opCreateParcel, layout.ParcelKey(id)); err != nil {
		return err
	}
	if err := s.createFile(ctx, dataKey, data); err != nil {
		return ioError(opCreateParcel, dataKey, err)
	}
	if err := s.createFile(ctx, labelKey, bytes.NewReader(encoded)); err != nil {
		return ioError(opCreateParcel, labelKey, err)
	}

	s.logger.Debug("parcel created", "sha256", id, "name", label.Name)
	return nil
}

// GetParcel opens the blob of the parcel addressed by label.SHA256. The
// stream is read lazily and the caller must close it.
func (s *FileStorage) GetParcel(ctx context.Context, label *bindle.Label) (rc io.ReadCloser, err error) {
	start := time.Now()
	defer func() { observe(ctx, opGetParcel, start, err) }()

	key := layout.ParcelDataKey(label.SHA256)
	rc, err = s.backend.Read(ctx, key)
	if err != nil {
		return nil, ioError(opGetParcel, key, err)
	}
	return rc, nil
}

// GetLabel loads the label stored for parcelID.
func (s *FileStorage) GetLabel(ctx context.Context, parcelID string) (label *bindle.Label, err error) {
	start := time.Now()
	defer func() { observe(ctx, opGetLabel, start, err) }()

	key := layout.LabelTOMLKey(parcelID)
	data, err := s.readFile(ctx, key)
	if err != nil {
		return nil, ioError(opGetLabel, key, err)
	}
	label, err = bindle.UnmarshalLabel(data)
	if err != nil {
		return nil, newError(KindMalformed, opGetLabel, key, err)
	}
	return label, nil
}
