// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/bookshelf/internal/events"
	"github.com/tomtom215/bookshelf/internal/models"
	"github.com/tomtom215/bookshelf/internal/pipeline"
	"github.com/tomtom215/bookshelf/internal/recommend"
	"github.com/tomtom215/bookshelf/internal/retrain"
)

// fanUpload places A on one axis and B..F at growing angles from it, so
// B..F are A's five nearest titles in that order and G is the farthest.
const fanUpload = `user_id,ISBN,rating,title,author
1,a,1,A,Ann
1,b,10,B,Bob
1,c,10,C,Cy
1,d,10,D,Di
1,e,10,E,Ed
1,f,10,F,Flo
2,b,1,B,Bob
2,c,2,C,Cy
2,d,3,D,Di
2,e,4,E,Ed
2,f,5,F,Flo
2,g,1,G,Gus
`

type liveAPI struct {
	*testAPI
	rec *recommend.Recommender
}

// newLiveAPI wires a real pipeline, trainer, recommender, retrain worker
// and event bus over an in-memory store.
func newLiveAPI(t *testing.T) *liveAPI {
	t.Helper()
	store := openStore(t)

	p := pipeline.New(store, pipeline.Options{})
	trainer, err := recommend.NewTrainer(store, nil)
	if err != nil {
		t.Fatalf("NewTrainer() error = %v", err)
	}
	rec, err := recommend.NewRecommender(store, nil)
	if err != nil {
		t.Fatalf("NewRecommender() error = %v", err)
	}

	bus := events.NewBus(events.DefaultConfig())
	bus.OnModelTrained("recommender", rec.HandleModelTrained)
	worker := retrain.NewWorker(p, trainer, bus, retrain.Config{QueueSize: 4, Invalidator: rec})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = bus.Serve(ctx) }()
	go func() { _ = worker.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = bus.Close()
	})
	select {
	case <-bus.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("bus not ready")
	}

	h := NewHandler(store, p, rec, worker, HandlerConfig{WaitTimeout: 30 * time.Second})
	mw := DefaultChiMiddlewareConfig()
	mw.RateLimitDisabled = true
	return &liveAPI{
		testAPI: &testAPI{handler: NewRouter(h, NewChiMiddleware(mw)).Setup(), store: store},
		rec:     rec,
	}
}

func (l *liveAPI) recommend(t *testing.T, title string) (int, models.RecommendResponse) {
	t.Helper()
	rec, body := l.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/recommend/"+title, nil))
	var resp models.RecommendResponse
	if rec.Code == http.StatusOK {
		decodeData(t, body, &resp)
	}
	return rec.Code, resp
}

func TestUploadTrainRecommend(t *testing.T) {
	l := newLiveAPI(t)

	if code, _ := l.recommend(t, "A"); code != http.StatusServiceUnavailable {
		t.Fatalf("recommend before training = %d, want 503", code)
	}

	rec, body := l.do(t, multipartUpload(t, "/api/v1/upload?wait=true", "file", fanUpload))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body.String())
	}
	var up models.UploadResult
	decodeData(t, body, &up)
	if up.JobStatus != jobCompleted || up.TotalRecords != 12 {
		t.Fatalf("upload = %+v, want completed job over 12 rows", up)
	}

	code, resp := l.recommend(t, "A")
	if code != http.StatusOK {
		t.Fatalf("recommend status = %d", code)
	}
	var got []string
	for i, item := range resp.Recommendations {
		got = append(got, item.Title)
		if item.Rank != i+1 {
			t.Errorf("rank of %s = %d, want %d", item.Title, item.Rank, i+1)
		}
		if i > 0 && item.Score > resp.Recommendations[i-1].Score {
			t.Errorf("score increases at rank %d", item.Rank)
		}
		if item.Metadata == nil || item.Metadata.Author == "" {
			t.Errorf("%s has no metadata", item.Title)
		}
	}
	if strings.Join(got, ",") != "B,C,D,E,F" {
		t.Errorf("recommendations = %v, want [B C D E F]", got)
	}

	if code, _ := l.recommend(t, "Nope"); code != http.StatusNotFound {
		t.Errorf("unknown title = %d, want 404", code)
	}

	rec, body = l.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/training-status", nil))
	var st models.TrainingStatusResponse
	decodeData(t, body, &st)
	if rec.Code != http.StatusOK || st.Status != modelReady || st.BookCount != 7 || st.LastJobID != up.JobID {
		t.Errorf("training status = %+v", st)
	}
}

func TestUploadInvalidatesServedModel(t *testing.T) {
	l := newLiveAPI(t)

	l.do(t, multipartUpload(t, "/api/v1/upload?wait=true", "file", fanUpload))
	if _, resp := l.recommend(t, "A"); len(resp.Recommendations) != 5 {
		t.Fatalf("first model gave %d recommendations, want 5", len(resp.Recommendations))
	}
	before, err := l.rec.Status(context.Background())
	if err != nil || before == nil {
		t.Fatalf("Status() = %v, %v", before, err)
	}

	// H is a new title rated by user 1 only, so it lands next to A.
	_, body := l.do(t, multipartUpload(t, "/api/v1/upload?wait=true", "file", "user_id,rating,title\n1,1,H\n"))
	var up models.UploadResult
	decodeData(t, body, &up)
	if up.JobStatus != jobCompleted {
		t.Fatalf("second upload = %+v", up)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		after, _ := l.rec.Status(context.Background())
		if after != nil && after.Checksum != before.Checksum {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("recommender still serves the old model")
		}
		time.Sleep(10 * time.Millisecond)
	}

	_, resp := l.recommend(t, "A")
	if len(resp.Recommendations) == 0 || resp.Recommendations[0].Title != "H" {
		t.Errorf("top recommendation after upload = %+v, want H", resp.Recommendations)
	}
}
