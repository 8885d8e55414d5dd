package service

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/boltdb/bolt"
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/model"
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/pkg/log"
	"github.com/eknkc/basex"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/crypto/nacl/secretbox"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var stagedIDEncoding, _ = basex.NewEncoding(base58Alphabet)

// Sealer encrypts staged passwords so that they never rest in plaintext.
type Sealer struct {
	key [32]byte
}

// NewSealer uses key, or a random key if key is empty.
func NewSealer(key []byte) (*Sealer, error) {
	var s Sealer
	switch len(key) {
	case 0:
		if _, err := io.ReadFull(rand.Reader, s.key[:]); err != nil {
			return nil, fmt.Errorf("NewSealer: %w", err)
		}
	case len(s.key):
		copy(s.key[:], key)
	default:
		return nil, fmt.Errorf("NewSealer: key must be %v bytes, got %v", len(s.key), len(key))
	}
	return &s, nil
}

// NewSealerFromHex decodes a hex key; an empty string gives a random key.
func NewSealerFromHex(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("NewSealerFromHex: %w", err)
	}
	return NewSealer(key)
}

func (s *Sealer) Seal(plain string) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	out := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	if len(b) < 24+secretbox.Overhead {
		return "", fmt.Errorf("sealed value too short")
	}
	var nonce [24]byte
	copy(nonce[:], b[:24])
	plain, ok := secretbox.Open(nil, b[24:], &nonce, &s.key)
	if !ok {
		return "", fmt.Errorf("cannot open sealed value")
	}
	return string(plain), nil
}

// DraftStore stages registration drafts in bolt between the entry step and the code step.
// The draft is stored as JSON and the attachment as base64 text under a companion key.
type DraftStore struct {
	db     *bolt.DB
	sealer *Sealer
	now    func() time.Time
}

func NewDraftStore(db *bolt.DB, sealer *Sealer) *DraftStore {
	return &DraftStore{db: db, sealer: sealer, now: time.Now}
}

func NewStagedID() model.StagedID {
	id := uuid.New()
	return model.StagedID(stagedIDEncoding.Encode(id[:]))
}

// Stage writes the draft and the optional attachment in one transaction.
func (s *DraftStore) Stage(draft model.RegistrationDraft, attachment []byte) (model.StagedID, error) {
	sealed, err := s.sealer.Seal(draft.Password)
	if err != nil {
		return "", fmt.Errorf("Stage: %w", err)
	}
	b, err := jsoniter.Marshal(model.NewStagedDraft(draft, sealed, s.now()))
	if err != nil {
		return "", fmt.Errorf("Stage: %w", err)
	}
	id := NewStagedID()
	if err := s.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(model.BucketRegistration))
		if err != nil {
			return err
		}
		if err := bkt.Put(model.DraftKey(id), b); err != nil {
			return err
		}
		if len(attachment) == 0 {
			return bkt.Delete(model.AttachmentKey(id))
		}
		return bkt.Put(model.AttachmentKey(id), []byte(base64.StdEncoding.EncodeToString(attachment)))
	}); err != nil {
		return "", fmt.Errorf("Stage: %w", err)
	}
	log.Trace("staged draft %v (attachment: %v bytes)", id, len(attachment))
	return id, nil
}

// Load reconstructs a staged draft. It fails with model.ErrDraftMissing or model.ErrDraftCorrupt.
func (s *DraftStore) Load(id model.StagedID) (draft model.RegistrationDraft, attachment []byte, err error) {
	var (
		rawDraft      []byte
		rawAttachment []byte
	)
	if err = s.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(model.BucketRegistration))
		if bkt == nil {
			return nil
		}
		if v := bkt.Get(model.DraftKey(id)); v != nil {
			rawDraft = append([]byte{}, v...)
		}
		if v := bkt.Get(model.AttachmentKey(id)); v != nil {
			rawAttachment = append([]byte{}, v...)
		}
		return nil
	}); err != nil {
		return draft, nil, fmt.Errorf("Load: %w", err)
	}
	if rawDraft == nil {
		return draft, nil, model.ErrDraftMissing
	}
	var staged model.StagedDraft
	if err := jsoniter.Unmarshal(rawDraft, &staged); err != nil {
		return draft, nil, fmt.Errorf("%w: %v", model.ErrDraftCorrupt, err)
	}
	if staged.SealedPassword == "" {
		return draft, nil, fmt.Errorf("%w: no password", model.ErrDraftCorrupt)
	}
	password, err := s.sealer.Open(staged.SealedPassword)
	if err != nil {
		return draft, nil, fmt.Errorf("%w: %v", model.ErrDraftCorrupt, err)
	}
	if rawAttachment != nil {
		attachment, err = base64.StdEncoding.DecodeString(string(rawAttachment))
		if err != nil {
			return draft, nil, fmt.Errorf("%w: attachment: %v", model.ErrDraftCorrupt, err)
		}
		if len(attachment) == 0 {
			return draft, nil, fmt.Errorf("%w: empty attachment", model.ErrDraftCorrupt)
		}
	}
	return staged.Draft(password, rawAttachment != nil), attachment, nil
}

// Clear removes both entries of a staged draft. Clearing an unknown id is not an error.
func (s *DraftStore) Clear(id model.StagedID) error {
	if err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(model.BucketRegistration))
		if bkt == nil {
			return nil
		}
		if err := bkt.Delete(model.DraftKey(id)); err != nil {
			return err
		}
		return bkt.Delete(model.AttachmentKey(id))
	}); err != nil {
		return fmt.Errorf("Clear: %w", err)
	}
	return nil
}

// Exists reports which of the two entries of id are present.
func (s *DraftStore) Exists(id model.StagedID) (draft bool, attachment bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(model.BucketRegistration))
		if bkt == nil {
			return nil
		}
		draft = bkt.Get(model.DraftKey(id)) != nil
		attachment = bkt.Get(model.AttachmentKey(id)) != nil
		return nil
	})
	return draft, attachment, err
}

// Sweep removes drafts staged more than ttl ago, unreadable drafts and orphaned attachments.
func (s *DraftStore) Sweep(ttl time.Duration) (removed int, err error) {
	now := s.now()
	err = s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(model.BucketRegistration))
		if bkt == nil {
			return nil
		}
		var listClean []model.StagedID
		if err := bkt.ForEach(func(k, v []byte) error {
			id, isAttachment, ok := model.ParseStoreKey(k)
			if !ok {
				return nil
			}
			if isAttachment {
				if bkt.Get(model.DraftKey(id)) == nil {
					listClean = append(listClean, id)
				}
				return nil
			}
			var staged model.StagedDraft
			if err := jsoniter.Unmarshal(v, &staged); err != nil {
				// unreadable drafts are regarded as expired
				listClean = append(listClean, id)
				return nil
			}
			if now.Sub(staged.StagedAt) >= ttl {
				listClean = append(listClean, id)
			}
			return nil
		}); err != nil {
			return err
		}
		for _, id := range listClean {
			if err := bkt.Delete(model.DraftKey(id)); err != nil {
				return err
			}
			if err := bkt.Delete(model.AttachmentKey(id)); err != nil {
				return err
			}
		}
		removed = len(listClean)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("Sweep: %w", err)
	}
	return removed, nil
}
