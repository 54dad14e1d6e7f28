package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/ssimba1203/gather-map-clean/internal/config"
	"github.com/ssimba1203/gather-map-clean/internal/database"
	"github.com/ssimba1203/gather-map-clean/internal/interfaces"
	"github.com/ssimba1203/gather-map-clean/internal/middleware"
	"github.com/ssimba1203/gather-map-clean/internal/services"
	"github.com/ssimba1203/gather-map-clean/internal/services/geocoding"
	"github.com/ssimba1203/gather-map-clean/internal/telemetry"
)

const (
	actionAdd      = "친구 추가"
	actionRemove   = "친구 삭제"
	actionCategory = "카테고리 선택"
	actionShow     = "현재 상태"
	actionReset    = "초기화"
	actionSeed     = "장소 색인 (Elasticsearch)"
	actionQuit     = "종료"
)

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		color.Red("설정을 불러오지 못했습니다: %v", err)
		os.Exit(1)
	}

	// keep the prompt readable; only warnings go to stderr
	if err := telemetry.InitGlobalLogger(&telemetry.LogConfig{
		Level:   telemetry.WarnLevel,
		Format:  "text",
		Output:  "stderr",
		Service: "gathercli",
	}); err != nil {
		color.Red("로거 초기화 실패: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kakao := geocoding.NewService(cfg.KakaoRESTKey,
		geocoding.WithBaseURL(cfg.KakaoBaseURL),
		geocoding.WithHTTPClient(&http.Client{Timeout: cfg.SearchTimeout}),
	)

	var (
		searcher geocoding.Searcher = kakao
		es       *geocoding.ElasticSearcher
	)
	if cfg.PlaceBackend == config.PlacesElastic {
		client, err := geocoding.NewElasticClient(cfg.ElasticURL)
		if err != nil {
			color.Red("Elasticsearch 연결 실패: %v", err)
			os.Exit(1)
		}
		es = geocoding.NewElasticSearcher(client, cfg.ElasticIndex)
		if err := es.EnsureIndex(ctx); err != nil {
			color.Red("Elasticsearch 인덱스 준비 실패: %v", err)
			os.Exit(1)
		}
		searcher = es
	}

	svc := services.NewGatheringService(services.NewMemoryStore(cfg.SessionTTL), searcher, services.GatheringOptions{
		DefaultCenter: database.LatLng{Lat: cfg.DefaultLat, Lng: cfg.DefaultLng},
		SearchRadius:  cfg.PlaceSearchRadius,
		ResultLimit:   cfg.PlaceResultLimit,
	})

	app := &cli{
		svc:    svc,
		id:     "cli-" + uuid.NewString(),
		es:     es,
		radius: cfg.PlaceSearchRadius,
	}
	// seeding copies Kakao results, so it needs a key even in elastic mode
	if cfg.KakaoRESTKey != "" {
		app.kakao = kakao
	}
	if err := app.run(ctx); err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
}

type cli struct {
	svc    interfaces.GatheringServiceInterface
	id     string
	kakao  geocoding.Searcher
	es     *geocoding.ElasticSearcher
	radius int
}

func (c *cli) run(ctx context.Context) error {
	title := color.New(color.FgCyan, color.Bold)
	title.Println("📍 친구들의 중간 지점 찾기")

	actions := []string{actionAdd, actionRemove, actionCategory, actionShow, actionReset}
	if c.es != nil && c.kakao != nil {
		actions = append(actions, actionSeed)
	}
	actions = append(actions, actionQuit)

	for ctx.Err() == nil {
		var action string
		if err := survey.AskOne(&survey.Select{Message: "무엇을 할까요?", Options: actions}, &action); err != nil {
			if err == terminal.InterruptErr {
				return nil
			}
			return err
		}
		if action == actionQuit {
			return nil
		}

		g, err := c.do(ctx, action)
		if err != nil {
			if err == terminal.InterruptErr {
				continue
			}
			color.Red("%s", middleware.UserFriendlyMessage(err))
			continue
		}
		if g != nil {
			fmt.Println(render(g))
		}
	}
	return nil
}

func (c *cli) do(ctx context.Context, action string) (*database.Gathering, error) {
	switch action {
	case actionAdd:
		var address string
		if err := survey.AskOne(&survey.Input{Message: "친구의 주소:"}, &address, survey.WithValidator(survey.Required)); err != nil {
			return nil, err
		}
		return c.svc.AddFriend(ctx, c.id, address)

	case actionRemove:
		g, err := c.svc.Get(ctx, c.id)
		if err != nil {
			return nil, err
		}
		if len(g.Friends) == 0 {
			color.Yellow("삭제할 친구가 없습니다.")
			return nil, nil
		}
		options := make([]string, len(g.Friends))
		for i, f := range g.Friends {
			options[i] = services.FriendHeading(f)
		}
		var idx int
		if err := survey.AskOne(&survey.Select{Message: "삭제할 친구:", Options: options}, &idx); err != nil {
			return nil, err
		}
		return c.svc.RemoveFriend(ctx, c.id, g.Friends[idx].ID)

	case actionCategory:
		var category string
		prompt := &survey.Select{Message: "추천 카테고리:", Options: services.Categories(), Default: services.DefaultCategory}
		if err := survey.AskOne(prompt, &category); err != nil {
			return nil, err
		}
		return c.svc.SelectCategory(ctx, c.id, category)

	case actionShow:
		return c.svc.Get(ctx, c.id)

	case actionReset:
		confirm := false
		if err := survey.AskOne(&survey.Confirm{Message: "모든 친구를 지울까요?"}, &confirm); err != nil {
			return nil, err
		}
		if !confirm {
			return nil, nil
		}
		return c.svc.Reset(ctx, c.id)

	case actionSeed:
		return nil, c.seed(ctx)
	}
	return nil, nil
}

// seed copies a Kakao keyword search around the current centre into the
// Elasticsearch index so the elastic backend has places to return
func (c *cli) seed(ctx context.Context) error {
	var keyword string
	if err := survey.AskOne(&survey.Input{Message: "색인할 검색어:", Default: services.DefaultCategory}, &keyword); err != nil {
		return err
	}
	g, err := c.svc.Get(ctx, c.id)
	if err != nil {
		return err
	}
	center := g.Center
	if g.Midpoint != nil {
		center = *g.Midpoint
	}

	places, err := c.kakao.KeywordSearch(ctx, keyword, geocoding.SearchOptions{
		Location: &geocoding.Coord{Lat: center.Lat, Lng: center.Lng},
		Radius:   c.radius,
		Size:     15,
		Sort:     geocoding.SortDistance,
	})
	if err != nil {
		return err
	}
	failed, err := c.es.IndexPlaces(ctx, places)
	if err != nil {
		return err
	}
	color.Green("%d개 장소를 색인했습니다 (실패 %d).", len(places)-failed, failed)
	return nil
}

var (
	heading = color.New(color.Bold).SprintFunc()
	faint   = color.New(color.Faint).SprintFunc()
)

// render formats a gathering for the terminal
func render(g *database.Gathering) string {
	out := "\n" + heading("친구 목록") + "\n"
	if len(g.Friends) == 0 {
		out += faint("  아직 추가된 친구가 없습니다.") + "\n"
		return out
	}
	for _, f := range g.Friends {
		out += "  " + services.FriendHeading(f) + "\n"
	}
	if g.Midpoint == nil {
		out += faint("  친구를 한 명 더 추가하면 중간 지점을 계산합니다.") + "\n"
		return out
	}

	out += fmt.Sprintf("\n%s %.5f, %.5f\n", heading(services.MidpointTitle+":"), g.Midpoint.Lat, g.Midpoint.Lng)
	out += "\n" + heading(services.PlacesHeading(g.Category)) + "\n"
	if len(g.Places) == 0 {
		out += faint("  검색 결과가 없습니다.") + "\n"
		return out
	}
	for i, p := range g.Places {
		addr := p.RoadAddress
		if addr == "" {
			addr = p.Address
		}
		out += "  " + strconv.Itoa(i+1) + ". " + p.Name + " (" + addr + ")\n"
		out += "     " + faint(p.MapURL) + "\n"
	}
	return out
}
