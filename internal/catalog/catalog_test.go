package catalog

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-storefront/internal/config"
	"github.com/web3-storefront/internal/models"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	all := c.List()
	require.Len(t, all, 6)

	kinds := map[Kind]bool{}
	for _, p := range all {
		kinds[p.Kind] = true
		assert.NoError(t, p.Validate())
	}
	assert.Len(t, kinds, 6)

	p, ok := c.Get(102)
	require.True(t, ok)
	assert.Equal(t, KindSoftwareLicense, p.Kind)
	assert.Equal(t, int64(9), p.Price)

	_, ok = c.Get(999)
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	t.Run("missing payload", func(t *testing.T) {
		p := Product{Kind: KindCourse, ID: 1, Name: "x"}
		assert.ErrorIs(t, p.Validate(), ErrInvalidProduct)
	})

	t.Run("extra payload", func(t *testing.T) {
		p := Product{Kind: KindCourse, ID: 1, Name: "x", Course: &CourseDetails{}, Digital: &DigitalDetails{}}
		assert.ErrorIs(t, p.Validate(), ErrInvalidProduct)
	})

	t.Run("unknown kind", func(t *testing.T) {
		p := Product{Kind: "bundle", ID: 1, Name: "x"}
		assert.ErrorIs(t, p.Validate(), ErrInvalidProduct)
	})

	t.Run("duplicate id", func(t *testing.T) {
		p := Product{Kind: KindCourse, ID: 1, Name: "x", Course: &CourseDetails{}}
		_, err := New([]Product{p, p})
		assert.ErrorIs(t, err, ErrInvalidProduct)
	})
}

func TestSubscriptionTimeframe(t *testing.T) {
	p, _ := Default().Get(3)
	purchase := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	tf := p.Subscription.Timeframe(purchase)
	assert.Equal(t, purchase, tf.StartDate)
	assert.Equal(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), tf.EndDate)
}

type fakePresigner struct {
	exists    bool
	existsErr error
	object    string
	expires   time.Duration
	err       error
}

func (f *fakePresigner) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakePresigner) PresignedGetObject(_ context.Context, bucket, object string, expires time.Duration, _ url.Values) (*url.URL, error) {
	f.object = object
	f.expires = expires
	if f.err != nil {
		return nil, f.err
	}
	return url.Parse("https://minio.local/" + bucket + "/" + object + "?X-Amz-Signature=abc")
}

func TestDownloads(t *testing.T) {
	ctx := context.Background()
	digital, _ := Default().Get(1)
	course, _ := Default().Get(2)
	paid := &models.User{Payed: true}
	unpaid := &models.User{}

	t.Run("static url when storage disabled", func(t *testing.T) {
		d, err := NewDownloads(ctx, config.ObjectStorageConfig{})
		require.NoError(t, err)

		link, err := d.URL(ctx, digital, paid)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/web3-toolkit-pro", link)
	})

	t.Run("presigned url", func(t *testing.T) {
		api := &fakePresigner{exists: true}
		d, err := NewDownloadsWithAPI(ctx, api, "downloads")
		require.NoError(t, err)

		link, err := d.URL(ctx, digital, paid)
		require.NoError(t, err)
		assert.Contains(t, link, "https://minio.local/downloads/products/1/web3-toolkit-pro.zip")
		assert.Equal(t, DownloadLinkTTL, api.expires)
	})

	t.Run("unpaid user", func(t *testing.T) {
		d := &Downloads{}
		_, err := d.URL(ctx, digital, unpaid)
		assert.ErrorIs(t, err, ErrPaymentRequired)
		_, err = d.URL(ctx, digital, nil)
		assert.ErrorIs(t, err, ErrPaymentRequired)
	})

	t.Run("not downloadable", func(t *testing.T) {
		d := &Downloads{}
		_, err := d.URL(ctx, course, paid)
		assert.ErrorIs(t, err, ErrNotDownloadable)
	})

	t.Run("missing bucket", func(t *testing.T) {
		_, err := NewDownloadsWithAPI(ctx, &fakePresigner{exists: false}, "downloads")
		assert.Error(t, err)

		_, err = NewDownloadsWithAPI(ctx, &fakePresigner{existsErr: errors.New("boom")}, "downloads")
		assert.Error(t, err)
	})
}
