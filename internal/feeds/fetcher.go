// Package feeds 从公开岗位源抓取职位并送入匹配引擎。
package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"ai-interviewer/internal/constants"
	"ai-interviewer/internal/types"
)

const (
	defaultRemoteOKURL = "https://remoteok.com/api"
	defaultMuseURL     = "https://www.themuse.com/api/public/jobs"
	unknownTitle       = "Unknown"
	userAgent          = "ai-interviewer/1.0 (+job-feed)"
)

// Fetcher 一个岗位源
type Fetcher interface {
	Source() string
	Fetch(ctx context.Context, page int) ([]types.JobInput, error)
}

// RemoteOK remoteok.com 公开 JSON，第一个元素是说明信息
type RemoteOK struct {
	url    string
	client *resty.Client
}

// NewRemoteOK 创建 RemoteOK 抓取器，url 为空时使用公开地址
func NewRemoteOK(feedURL string, timeout time.Duration) *RemoteOK {
	if feedURL == "" {
		feedURL = defaultRemoteOKURL
	}
	return &RemoteOK{url: feedURL, client: newHTTPClient(timeout)}
}

func (r *RemoteOK) Source() string { return constants.SourceRemoteOK }

type remoteOKJob struct {
	ID          json.RawMessage `json:"id"`
	Position    string          `json:"position"`
	Title       string          `json:"title"`
	Company     string          `json:"company"`
	Location    string          `json:"location"`
	Description string          `json:"description"`
	URL         string          `json:"url"`
}

// Fetch RemoteOK 没有分页，page 被忽略
func (r *RemoteOK) Fetch(ctx context.Context, _ int) ([]types.JobInput, error) {
	var items []json.RawMessage
	if err := getJSON(ctx, r.client, r.url, &items); err != nil {
		return nil, fmt.Errorf("抓取 RemoteOK 失败: %w", err)
	}
	if len(items) == 0 {
		return []types.JobInput{}, nil
	}

	jobs := make([]types.JobInput, 0, len(items)-1)
	for _, raw := range items[1:] {
		var x remoteOKJob
		if err := json.Unmarshal(raw, &x); err != nil {
			continue
		}
		if strings.TrimSpace(x.Description) == "" {
			continue
		}
		jobs = append(jobs, types.JobInput{
			Source:      constants.SourceRemoteOK,
			ExternalID:  rawID(x.ID),
			Title:       firstNonEmpty(x.Position, x.Title, unknownTitle),
			Company:     x.Company,
			Location:    x.Location,
			Description: x.Description,
			URL:         x.URL,
		})
	}
	return jobs, nil
}

// Muse The Muse 公开 API，按页抓取
type Muse struct {
	url    string
	client *resty.Client
}

// NewMuse 创建 The Muse 抓取器
func NewMuse(feedURL string, timeout time.Duration) *Muse {
	if feedURL == "" {
		feedURL = defaultMuseURL
	}
	return &Muse{url: feedURL, client: newHTTPClient(timeout)}
}

func (m *Muse) Source() string { return constants.SourceMuse }

type museResponse struct {
	Results []struct {
		ID          json.RawMessage `json:"id"`
		Name        string          `json:"name"`
		Contents    string          `json:"contents"`
		Description string          `json:"description"`
		Company     *struct {
			Name string `json:"name"`
		} `json:"company"`
		Locations []struct {
			Name string `json:"name"`
		} `json:"locations"`
		Refs struct {
			LandingPage string `json:"landing_page"`
		} `json:"refs"`
	} `json:"results"`
}

func (m *Muse) Fetch(ctx context.Context, page int) ([]types.JobInput, error) {
	if page < 1 {
		page = 1
	}
	u, err := url.Parse(m.url)
	if err != nil {
		return nil, fmt.Errorf("无效的 The Muse 地址: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	var resp museResponse
	if err := getJSON(ctx, m.client, u.String(), &resp); err != nil {
		return nil, fmt.Errorf("抓取 The Muse 失败: %w", err)
	}

	jobs := make([]types.JobInput, 0, len(resp.Results))
	for _, x := range resp.Results {
		desc := firstNonEmpty(x.Contents, x.Description)
		if strings.TrimSpace(desc) == "" {
			continue
		}
		var locations []string
		for _, l := range x.Locations {
			if l.Name != "" {
				locations = append(locations, l.Name)
			}
		}
		company := ""
		if x.Company != nil {
			company = x.Company.Name
		}
		jobs = append(jobs, types.JobInput{
			Source:      constants.SourceMuse,
			ExternalID:  rawID(x.ID),
			Title:       firstNonEmpty(x.Name, unknownTitle),
			Company:     company,
			Location:    strings.Join(locations, ", "),
			Description: desc,
			URL:         x.Refs.LandingPage,
		})
	}
	return jobs, nil
}

func newHTTPClient(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)
}

// getJSON 部分岗位源返回的 Content-Type 不是 json，这里强制按 json 解析
func getJSON(ctx context.Context, client *resty.Client, target string, out any) error {
	resp, err := client.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(out).
		Get(target)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("unexpected status %s: %s", resp.Status(), truncate(resp.String(), 200))
	}
	return nil
}

// rawID 数字或字符串形式的 id 都转为字符串
func rawID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
