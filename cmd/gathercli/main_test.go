package main

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/ssimba1203/gather-map-clean/internal/database"
)

func TestRender(t *testing.T) {
	color.NoColor = true

	t.Run("empty gathering", func(t *testing.T) {
		out := render(&database.Gathering{Category: "카페"})
		assert.Contains(t, out, "아직 추가된 친구가 없습니다.")
		assert.NotContains(t, out, "중간 지점")
	})

	t.Run("single friend has no midpoint", func(t *testing.T) {
		out := render(&database.Gathering{
			Category: "카페",
			Friends:  []database.Friend{{ID: 1, Address: "강남역"}},
		})
		assert.Contains(t, out, "친구 1: 강남역")
		assert.Contains(t, out, "한 명 더")
	})

	t.Run("midpoint with places", func(t *testing.T) {
		out := render(&database.Gathering{
			Category: "카페",
			Friends: []database.Friend{
				{ID: 1, Address: "강남역"},
				{ID: 2, Address: "홍대입구역"},
			},
			Midpoint: &database.LatLng{Lat: 37.5318, Lng: 126.9747},
			Places: []database.Place{
				{Name: "카페 A", Address: "서울 용산구", MapURL: "https://map.naver.com/v5/search/A"},
				{Name: "카페 B", Address: "서울 용산구 지번", RoadAddress: "서울 용산구 도로명", MapURL: "https://map.naver.com/v5/search/B"},
			},
		})
		assert.Contains(t, out, "중간 지점: 37.53180, 126.97470")
		assert.Contains(t, out, "중간 지점 근처 카페 추천")
		assert.Contains(t, out, "1. 카페 A (서울 용산구)")
		assert.Contains(t, out, "2. 카페 B (서울 용산구 도로명)")
		assert.Contains(t, out, "https://map.naver.com/v5/search/B")
	})

	t.Run("midpoint without places", func(t *testing.T) {
		out := render(&database.Gathering{
			Category: "편의점",
			Friends:  []database.Friend{{ID: 1, Address: "a"}, {ID: 2, Address: "b"}},
			Midpoint: &database.LatLng{Lat: 1, Lng: 2},
		})
		assert.Contains(t, out, "검색 결과가 없습니다.")
	})
}
