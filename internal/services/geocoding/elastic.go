package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/olivere/elastic/v7"
	apperrors "github.com/ssimba1203/gather-map-clean/internal/errors"
	"github.com/ssimba1203/gather-map-clean/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const placesMapping = `{
	"mappings": {
		"properties": {
			"id":           {"type": "keyword"},
			"name":         {"type": "text"},
			"address":      {"type": "text"},
			"road_address": {"type": "text"},
			"category":     {"type": "text"},
			"phone":        {"type": "keyword"},
			"url":          {"type": "keyword"},
			"location":     {"type": "geo_point"}
		}
	}
}`

// placeDocument is the indexed form of a Place
type placeDocument struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Address     string           `json:"address"`
	RoadAddress string           `json:"road_address,omitempty"`
	Category    string           `json:"category,omitempty"`
	Phone       string           `json:"phone,omitempty"`
	URL         string           `json:"url,omitempty"`
	Location    elastic.GeoPoint `json:"location"`
}

// ElasticSearcher answers keyword searches from a self-hosted POI index
type ElasticSearcher struct {
	client *elastic.Client
	index  string
}

// NewElasticClient connects to a single node without sniffing
func NewElasticClient(url string) (*elastic.Client, error) {
	client, err := elastic.NewClient(
		elastic.SetURL(url),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return client, nil
}

func NewElasticSearcher(client *elastic.Client, index string) *ElasticSearcher {
	return &ElasticSearcher{client: client, index: index}
}

// EnsureIndex creates the places index with a geo_point mapping when missing
func (es *ElasticSearcher) EnsureIndex(ctx context.Context) error {
	exists, err := es.client.IndexExists(es.index).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", es.index, err)
	}
	if exists {
		return nil
	}

	created, err := es.client.CreateIndex(es.index).BodyString(placesMapping).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", es.index, err)
	}
	if !created.Acknowledged {
		telemetry.LogFromContext(ctx).WithField("index", es.index).Warn("Create index was not acknowledged")
	}
	return nil
}

// IndexPlaces bulk-indexes places, returning the number of failed items
func (es *ElasticSearcher) IndexPlaces(ctx context.Context, places []Place) (int, error) {
	if len(places) == 0 {
		return 0, nil
	}

	bulk := es.client.Bulk().Index(es.index)
	for _, p := range places {
		doc := placeDocument{
			ID:          p.ID,
			Name:        p.Name,
			Address:     p.Address,
			RoadAddress: p.RoadAddress,
			Category:    p.Category,
			Phone:       p.Phone,
			URL:         p.URL,
			Location:    elastic.GeoPoint{Lat: p.Lat, Lon: p.Lng},
		}
		req := elastic.NewBulkIndexRequest().Doc(doc)
		if p.ID != "" {
			req = req.Id(p.ID)
		}
		bulk = bulk.Add(req)
	}

	resp, err := bulk.Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("bulk index failed: %w", err)
	}
	return len(resp.Failed()), nil
}

func (es *ElasticSearcher) KeywordSearch(ctx context.Context, query string, opts SearchOptions) (places []Place, err error) {
	if query = NormalizeQuery(query); query == "" {
		return []Place{}, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "elastic.keyword_search",
		attribute.String("search.query", query),
		attribute.String("search.index", es.index),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	q := elastic.NewBoolQuery().Must(
		elastic.NewMultiMatchQuery(query, "name^3", "category^2", "address", "road_address"),
	)

	search := es.client.Search().Index(es.index).Query(q)
	if opts.Location != nil {
		if opts.Radius > 0 {
			q.Filter(elastic.NewGeoDistanceQuery("location").
				Point(opts.Location.Lat, opts.Location.Lng).
				Distance(fmt.Sprintf("%dm", opts.Radius)))
		}
		if opts.Sort != SortAccuracy {
			search = search.SortBy(elastic.NewGeoDistanceSort("location").
				Point(opts.Location.Lat, opts.Location.Lng).
				Asc().
				Unit("m").
				DistanceType("arc").
				IgnoreUnmapped(true))
		}
	}
	size := opts.Size
	if size <= 0 {
		size = maxPageSize
	}

	result, err := search.Size(size).Do(ctx)
	if err != nil {
		telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
			"query":     query,
			"operation": "keyword_search",
			"service":   "elasticsearch",
		}).WithError(err).Warn("Keyword search failed")
		return nil, apperrors.NewExternalError("elasticsearch", "keyword_search", err)
	}

	places = make([]Place, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		var doc placeDocument
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			continue
		}
		p := Place{
			ID:          doc.ID,
			Name:        doc.Name,
			Address:     doc.Address,
			RoadAddress: doc.RoadAddress,
			Category:    doc.Category,
			Phone:       doc.Phone,
			URL:         doc.URL,
			Lat:         doc.Location.Lat,
			Lng:         doc.Location.Lon,
		}
		if opts.Location != nil {
			p.DistanceM = int(math.Round(Haversine(*opts.Location, Coord{Lat: p.Lat, Lng: p.Lng})))
		}
		places = append(places, p)
	}
	return places, nil
}

// Ping checks that the index is reachable
func (es *ElasticSearcher) Ping(ctx context.Context) error {
	_, err := es.client.IndexExists(es.index).Do(ctx)
	return err
}
