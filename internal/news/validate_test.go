package news

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateParams(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		params  SearchParams
		wantErr bool
	}{
		{name: "topic only", params: SearchParams{Topic: "quantum computing"}},
		{name: "all filters", params: SearchParams{Topic: "fusion", Language: "en", Country: "us", Category: "science"}},
		{name: "empty topic", params: SearchParams{}, wantErr: true},
		{name: "whitespace topic", params: SearchParams{Topic: "   "}, wantErr: true},
		{name: "bad language", params: SearchParams{Topic: "ai", Language: "english"}, wantErr: true},
		{name: "uppercase language", params: SearchParams{Topic: "ai", Language: "EN"}, wantErr: true},
		{name: "bad country", params: SearchParams{Topic: "ai", Country: "usa"}, wantErr: true},
		{name: "bad category", params: SearchParams{Topic: "ai", Category: "astrology"}, wantErr: true},
		{name: "category case insensitive", params: SearchParams{Topic: "ai", Category: "Science"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateParams(tc.params)
			if tc.wantErr {
				require.Error(t, err)
				require.Equal(t, KindValidation, KindOf(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRelevanceRank(t *testing.T) {
	t.Parallel()

	require.Less(t, RelevanceHigh.Rank(), RelevanceMid.Rank())
	require.Less(t, RelevanceMid.Rank(), RelevanceLow.Rank())
	require.Greater(t, Relevance("??").Rank(), RelevanceLow.Rank())
}
