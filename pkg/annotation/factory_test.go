package annotation_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/walteh/tokenhints/pkg/annotation"
	"github.com/walteh/tokenhints/pkg/matcher"
	"github.com/walteh/tokenhints/pkg/text"
	"github.com/walteh/tokenhints/pkg/tokens"
	"gitlab.com/tozd/go/errors"
)

type mockHost struct {
	mock.Mock
}

func (m *mockHost) CreateDecorationType(ctx context.Context, style annotation.Style) (annotation.Handle, error) {
	args := m.Called(ctx, style)
	return args.Get(0).(annotation.Handle), args.Error(1)
}

func (m *mockHost) SetDecorations(ctx context.Context, document string, h annotation.Handle, opts []annotation.Options) error {
	return m.Called(ctx, document, h, opts).Error(0)
}

func (m *mockHost) Dispose(ctx context.Context, h annotation.Handle) error {
	return m.Called(ctx, h).Error(0)
}

func TestCreateColorToken(t *testing.T) {
	ctx := context.Background()
	host := &mockHost{}
	f := annotation.NewFactory(host, annotation.FactoryConfig{})

	doc := text.NewDocument("const x = colorPrimary;")
	occ := matcher.Occurrence{Name: "colorPrimary", Line: 0, Offset: 10, Length: 12}
	v := tokens.StringValue("#1890ff")

	wantStyle := annotation.Style{After: annotation.AttachmentStyle{
		ContentText:     "**",
		BackgroundColor: "#1890ff",
		Color:           "#1890ff",
		Margin:          "0 0 0 5px",
		FontWeight:      "bolder",
	}}
	wantRange := text.Range{Start: text.Position{Line: 0, Character: 10}, End: text.Position{Line: 0, Character: 22}}

	host.On("CreateDecorationType", ctx, wantStyle).Return(annotation.Handle("h1"), nil).Once()
	host.On("SetDecorations", ctx, "file:///a.ts", annotation.Handle("h1"), mock.MatchedBy(func(opts []annotation.Options) bool {
		return len(opts) == 1 && opts[0].Range == wantRange && strings.Contains(opts[0].HoverMessage, "#1890ff")
	})).Return(nil).Once()

	a, err := f.Create(ctx, "file:///a.ts", doc, occ, v)
	require.NoError(t, err)
	assert.Equal(t, annotation.Handle("h1"), a.Handle)
	assert.Equal(t, "**", a.Label)
	assert.Equal(t, wantRange, a.Range)
	host.AssertExpectations(t)

	host.On("Dispose", ctx, annotation.Handle("h1")).Return(nil).Once()
	require.NoError(t, a.Release(ctx, host))
	require.NoError(t, a.Release(ctx, host))
	assert.True(t, a.Released())
	host.AssertNumberOfCalls(t, "Dispose", 1)
}

func TestCreateDisposesOnRejectedPlacement(t *testing.T) {
	ctx := context.Background()
	host := &mockHost{}
	f := annotation.NewFactory(host, annotation.FactoryConfig{})

	host.On("CreateDecorationType", ctx, mock.Anything).Return(annotation.Handle("h2"), nil)
	host.On("SetDecorations", ctx, "doc", annotation.Handle("h2"), mock.Anything).Return(errors.New("editor closed"))
	host.On("Dispose", ctx, annotation.Handle("h2")).Return(nil).Once()

	_, err := f.Create(ctx, "doc", text.NewDocument("fontSize"), matcher.Occurrence{Name: "fontSize", Length: 8}, tokens.NumberValue(14))
	require.Error(t, err)
	host.AssertExpectations(t)
}

func TestStyleFor(t *testing.T) {
	f := annotation.NewFactory(nil, annotation.FactoryConfig{LabelMax: 10})

	tests := []struct {
		name  string
		value tokens.Value
		label string
		bg    string
		color string
	}{
		{name: "rgb color", value: tokens.StringValue("rgb(24, 144, 255)"), label: "**", bg: "#1890ff", color: "#1890ff"},
		{name: "number", value: tokens.NumberValue(14), label: "14", color: "#b37feb"},
		{name: "long string", value: tokens.StringValue("cubic-bezier(0.645, 0.045)"), label: "cubic-bezi...", color: "#b37feb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := f.StyleFor(tt.value)
			assert.Equal(t, tt.label, s.After.ContentText)
			assert.Equal(t, tt.bg, s.After.BackgroundColor)
			assert.Equal(t, tt.color, s.After.Color)
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{name: "short", in: "solid", limit: 36, want: "solid"},
		{name: "exact", in: "abcd", limit: 4, want: "abcd"},
		{name: "long", in: "abcdef", limit: 4, want: "abcd..."},
		{name: "multibyte under limit", in: "ééé", limit: 4, want: "ééé"},
		{name: "grapheme clusters", in: "ééé", limit: 2, want: "éé..."},
		{name: "zero limit", in: "abc", limit: 0, want: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, annotation.Truncate(tt.in, tt.limit))
		})
	}
}
