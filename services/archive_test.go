package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"game-battle-service/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestArchiveBattleUploadsJSON(t *testing.T) {
	put := &fakePutter{}
	a := NewR2Archiver(put, "battle-archive")
	b := &models.Battle{
		ID:        "b-1",
		GameSlug:  testGame,
		Status:    models.BattleStatusCompleted,
		CreatedAt: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	}
	turns := []models.Turn{{BattleID: "b-1", TurnNumber: 1, DeviceID: "dev-a"}}

	if err := a.ArchiveBattle(context.Background(), b, turns); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if aws.ToString(put.in.Bucket) != "battle-archive" {
		t.Fatalf("unexpected bucket %q", aws.ToString(put.in.Bucket))
	}
	if key := aws.ToString(put.in.Key); key != "battles/tactics-arena/2026/03/b-1.json" {
		t.Fatalf("unexpected key %q", key)
	}
	var doc struct {
		Battle models.Battle `json:"battle"`
		Turns  []models.Turn `json:"turns"`
	}
	if err := json.Unmarshal(put.body, &doc); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if doc.Battle.ID != "b-1" || len(doc.Turns) != 1 {
		t.Fatalf("unexpected archive %+v", doc)
	}
}

func TestArchiveBattleReportsFailure(t *testing.T) {
	a := NewR2Archiver(&fakePutter{err: errors.New("boom")}, "bucket")
	if err := a.ArchiveBattle(context.Background(), &models.Battle{ID: "x"}, nil); err == nil {
		t.Fatal("expected upload error")
	}
}
