package search

import (
	"testing"

	"github.com/procurelab/bidwise/internal/sourcing"
)

func seedRefs() []sourcing.SourceReference {
	return []sourcing.SourceReference{
		{
			Title:      "STM32F103C8T6 pricing and stock",
			URL:        "https://example.com/stm32",
			Snippet:    "current market price for STM32 microcontrollers",
			SourceName: "ChipMart",
			ItemName:   "STM32F103C8T6",
		},
		{
			Title:      "SFP-10G-SR transceiver datasheet",
			URL:        "https://example.com/sfp",
			Snippet:    "10G short-range optical transceiver specifications",
			SourceName: "PartsBay",
			ItemName:   "SFP-10G-SR",
		},
		{
			Title:      "Huawei supplier profile",
			URL:        "https://example.com/huawei",
			Snippet:    "market share and company strength overview",
			SourceName: "market share-external-search",
			ItemName:   "Huawei Technologies Co., Ltd.",
		},
	}
}

func TestCitationSearch(t *testing.T) {
	ci := NewCitationIndex()
	if err := ci.Add("conv-1", seedRefs()); err != nil {
		t.Fatalf("add: %v", err)
	}

	hits, err := ci.Search("conv-1", "transceiver", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits for indexed term")
	}
	if hits[0].URL != "https://example.com/sfp" {
		t.Fatalf("top hit = %+v", hits[0])
	}
	if hits[0].Rank != 1 {
		t.Fatalf("rank = %d", hits[0].Rank)
	}
}

func TestCitationSearchIsolatedPerConversation(t *testing.T) {
	ci := NewCitationIndex()
	if err := ci.Add("conv-1", seedRefs()); err != nil {
		t.Fatalf("add: %v", err)
	}

	hits, err := ci.Search("conv-2", "transceiver", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("unknown conversation returned %d hits", len(hits))
	}
}

func TestCitationIndexAccumulatesAcrossRuns(t *testing.T) {
	ci := NewCitationIndex()
	refs := seedRefs()
	if err := ci.Add("conv-1", refs[:1]); err != nil {
		t.Fatalf("add first run: %v", err)
	}
	if err := ci.Add("conv-1", refs[1:]); err != nil {
		t.Fatalf("add second run: %v", err)
	}

	hits, err := ci.Search("conv-1", "market", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) < 2 {
		t.Fatalf("got %d hits across runs, want at least 2", len(hits))
	}
}

func TestCitationIndexDrop(t *testing.T) {
	ci := NewCitationIndex()
	if err := ci.Add("conv-1", seedRefs()); err != nil {
		t.Fatalf("add: %v", err)
	}
	ci.Drop("conv-1")
	hits, err := ci.Search("conv-1", "transceiver", 5)
	if err != nil || len(hits) != 0 {
		t.Fatalf("dropped conversation still searchable: %v %d", err, len(hits))
	}
}
