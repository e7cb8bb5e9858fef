package rpc

import (
	"encoding/base64"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/localnative/localnative/internal/apperr"
	"github.com/localnative/localnative/internal/models"
	"github.com/localnative/localnative/internal/notes"
)

// maxMessageBytes bounds every sync message in both directions. Annotations
// travel base64 encoded, so a note at the insert cap needs 4/3 of its size
// plus field overhead.
const maxMessageBytes = 2*notes.MaxNoteBytes + 64<<10

// Note fields on the wire. rowid is local to each store and never sent.
const (
	fieldUUID4       = "uuid4"
	fieldTitle       = "title"
	fieldURL         = "url"
	fieldTags        = "tags"
	fieldDescription = "description"
	fieldComments    = "comments"
	fieldAnnotations = "annotations"
	fieldCreatedAt   = "created_at"
	fieldIsPublic    = "is_public"
)

func noteToProto(n models.Note) *structpb.Struct {
	str := structpb.NewStringValue
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldUUID4:       str(n.UUID4),
		fieldTitle:       str(n.Title),
		fieldURL:         str(n.URL),
		fieldTags:        str(n.Tags),
		fieldDescription: str(n.Description),
		fieldComments:    str(n.Comments),
		fieldAnnotations: str(base64.StdEncoding.EncodeToString(n.Annotations)),
		fieldCreatedAt:   str(n.CreatedAt),
		fieldIsPublic:    structpb.NewBoolValue(n.IsPublic),
	}}
}

func noteFromProto(s *structpb.Struct) (models.Note, error) {
	var n models.Note
	f := s.GetFields()
	for key, dst := range map[string]*string{
		fieldUUID4:       &n.UUID4,
		fieldTitle:       &n.Title,
		fieldURL:         &n.URL,
		fieldTags:        &n.Tags,
		fieldDescription: &n.Description,
		fieldComments:    &n.Comments,
		fieldCreatedAt:   &n.CreatedAt,
	} {
		v, ok := f[key]
		if !ok {
			continue
		}
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return models.Note{}, fmt.Errorf("rpc: note field %s is not a string: %w", key, apperr.ErrDecode)
		}
		*dst = sv.StringValue
	}
	if v, ok := f[fieldAnnotations]; ok {
		raw, err := base64.StdEncoding.DecodeString(v.GetStringValue())
		if err != nil {
			return models.Note{}, fmt.Errorf("rpc: note annotations: %w: %w", apperr.ErrDecode, err)
		}
		if len(raw) > 0 {
			n.Annotations = raw
		}
	}
	n.IsPublic = f[fieldIsPublic].GetBoolValue()
	return n, nil
}

func uuidList(ids []string) *structpb.ListValue {
	vals := make([]*structpb.Value, len(ids))
	for i, id := range ids {
		vals[i] = structpb.NewStringValue(id)
	}
	return &structpb.ListValue{Values: vals}
}

func uuidsFrom(l *structpb.ListValue) ([]string, error) {
	ids := make([]string, 0, len(l.GetValues()))
	for i, v := range l.GetValues() {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("rpc: uuid list entry %d is not a string: %w", i, apperr.ErrDecode)
		}
		ids = append(ids, sv.StringValue)
	}
	return ids, nil
}
