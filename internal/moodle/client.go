// Package moodle is a client for the Moodle REST web services used to read
// the course catalog, enrolments and gradebook.
package moodle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-recommender/internal/observability"
)

const (
	restPath          = "/webservice/rest/server.php"
	tagConcurrency    = 8
	maxResponseBytes  = 16 << 20
	courseItemType    = "course"
	siteCourseID      = 1
	defaultTimeout    = 10 * time.Second
	breakerMinSamples = 10
)

var (
	// ErrNotConfigured indicates a missing Moodle URL or token.
	ErrNotConfigured = errors.New("moodle client is not configured")
	// ErrUnavailable indicates Moodle could not be reached or the circuit is open.
	ErrUnavailable = errors.New("moodle is unavailable")
	// ErrUserNotFound indicates no Moodle account matches the username.
	ErrUserNotFound = errors.New("moodle user not found")
)

// APIError is the exception payload Moodle returns with HTTP 200.
type APIError struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("moodle %s (%s): %s", e.Exception, e.ErrorCode, e.Message)
}

// Config configures the client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Course is a catalog entry as returned by core_course_get_courses.
type Course struct {
	ID        int
	FullName  string
	ShortName string
	Summary   string
	Tags      []string
}

// GradeItem is one row of a user's gradebook.
type GradeItem struct {
	ItemName   string
	ItemType   string
	ItemModule string
	RawGrade   *float64
	MaxGrade   *float64
}

// User is a Moodle account.
type User struct {
	ID       int
	Username string
	FullName string
	Email    string
}

// Client talks to one Moodle site.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     zerolog.Logger

	tagsMu   sync.RWMutex
	tagCache map[int][]string
}

// NewClient validates the configuration and builds a client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" || strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	endpoint := strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasSuffix(endpoint, ".php") {
		endpoint += restPath
	}

	logger := cfg.Logger.With().Str("component", "moodle_client").Logger()

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "moodle",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breakerMinSamples {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("moodle circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			return err == nil || errors.As(err, &apiErr) || errors.Is(err, context.Canceled)
		},
	})

	return &Client{
		endpoint:   endpoint,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		logger:     logger,
		tagCache:   make(map[int][]string),
	}, nil
}

// Courses lists every course except the site front page, with tags attached.
func (c *Client) Courses(ctx context.Context) ([]Course, error) {
	body, err := c.call(ctx, "core_course_get_courses", nil)
	if err != nil {
		return nil, err
	}

	type rawCourse struct {
		ID        int    `json:"id"`
		FullName  string `json:"fullname"`
		ShortName string `json:"shortname"`
		Summary   string `json:"summary"`
	}

	var raw []rawCourse
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapper struct {
			Courses []rawCourse `json:"courses"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, fmt.Errorf("decode courses: %w", err)
		}
		raw = wrapper.Courses
	} else if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("decode courses: %w", err)
	}

	courses := make([]Course, 0, len(raw))
	for _, item := range raw {
		if item.ID <= siteCourseID {
			continue
		}
		name := item.FullName
		if name == "" {
			name = "Unnamed Course"
		}
		courses = append(courses, Course{ID: item.ID, FullName: name, ShortName: item.ShortName, Summary: item.Summary})
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(tagConcurrency)
	for i := range courses {
		i := i
		group.Go(func() error {
			tags, err := c.CourseTags(groupCtx, courses[i].ID)
			if err != nil {
				c.logger.Warn().Err(err).Int("course_id", courses[i].ID).Msg("failed to fetch course tags")
				return nil
			}
			courses[i].Tags = tags
			return nil
		})
	}
	_ = group.Wait()

	return courses, nil
}

// CourseTags returns the tag names of a course. Successful lookups are cached
// for the lifetime of the client.
func (c *Client) CourseTags(ctx context.Context, courseID int) ([]string, error) {
	c.tagsMu.RLock()
	cached, ok := c.tagCache[courseID]
	c.tagsMu.RUnlock()
	if ok {
		return cached, nil
	}

	body, err := c.call(ctx, "core_tag_get_item_tags", url.Values{
		"component": {"core"},
		"itemtype":  {"course"},
		"itemid":    {strconv.Itoa(courseID)},
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Tags []struct {
			RawName     string `json:"rawname"`
			DisplayName string `json:"displayname"`
		} `json:"tags"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}

	tags := make([]string, 0, len(payload.Tags))
	for _, tag := range payload.Tags {
		name := tag.DisplayName
		if name == "" {
			name = tag.RawName
		}
		if name = strings.TrimSpace(name); name != "" {
			tags = append(tags, name)
		}
	}

	c.tagsMu.Lock()
	c.tagCache[courseID] = tags
	c.tagsMu.Unlock()
	return tags, nil
}

// UserGrades returns the gradebook of a user in a course.
func (c *Client) UserGrades(ctx context.Context, userID, courseID int) ([]GradeItem, error) {
	body, err := c.call(ctx, "gradereport_user_get_grade_items", url.Values{
		"userid":   {strconv.Itoa(userID)},
		"courseid": {strconv.Itoa(courseID)},
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		UserGrades []struct {
			GradeItems []struct {
				ItemName   *string  `json:"itemname"`
				ItemType   string   `json:"itemtype"`
				ItemModule *string  `json:"itemmodule"`
				GradeRaw   *float64 `json:"graderaw"`
				GradeMax   *float64 `json:"grademax"`
			} `json:"gradeitems"`
		} `json:"usergrades"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode grades: %w", err)
	}
	if len(payload.UserGrades) == 0 {
		return nil, nil
	}

	items := make([]GradeItem, 0, len(payload.UserGrades[0].GradeItems))
	for _, raw := range payload.UserGrades[0].GradeItems {
		item := GradeItem{
			ItemType: raw.ItemType,
			RawGrade: raw.GradeRaw,
			MaxGrade: raw.GradeMax,
		}
		if raw.ItemName != nil {
			item.ItemName = *raw.ItemName
		}
		if raw.ItemModule != nil {
			item.ItemModule = *raw.ItemModule
		}
		items = append(items, item)
	}
	return items, nil
}

// UserIDByUsername resolves a username to a Moodle user id.
func (c *Client) UserIDByUsername(ctx context.Context, username string) (int, error) {
	body, err := c.call(ctx, "core_user_get_users", url.Values{
		"criteria[0][key]":   {"username"},
		"criteria[0][value]": {username},
	})
	if err != nil {
		return 0, err
	}

	var payload struct {
		Users []struct {
			ID int `json:"id"`
		} `json:"users"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("decode users: %w", err)
	}
	if len(payload.Users) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return payload.Users[0].ID, nil
}

// EnrolledUsers lists the accounts enrolled in a course.
func (c *Client) EnrolledUsers(ctx context.Context, courseID int) ([]User, error) {
	body, err := c.call(ctx, "core_enrol_get_enrolled_users", url.Values{"courseid": {strconv.Itoa(courseID)}})
	if err != nil {
		return nil, err
	}

	var raw []struct {
		ID       int    `json:"id"`
		Username string `json:"username"`
		FullName string `json:"fullname"`
		Email    string `json:"email"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode enrolled users: %w", err)
	}

	users := make([]User, 0, len(raw))
	for _, item := range raw {
		users = append(users, User{ID: item.ID, Username: item.Username, FullName: item.FullName, Email: item.Email})
	}
	return users, nil
}

func (c *Client) call(ctx context.Context, function string, params url.Values) ([]byte, error) {
	query := url.Values{}
	for key, values := range params {
		query[key] = values
	}
	query.Set("wstoken", c.token)
	query.Set("wsfunction", function)
	query.Set("moodlewsrestformat", "json")

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, c.endpoint+"?"+query.Encode())
	})

	status := "success"
	defer func() {
		observability.MoodleRequests().WithLabelValues(function, status).Inc()
	}()

	if err != nil {
		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr):
			status = "exception"
			return nil, err
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			status = "rejected"
		default:
			status = "failure"
		}
		c.logger.Warn().Err(err).Str("function", function).Msg("moodle request failed")
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, function, err)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if bytes.Contains(body, []byte(`"exception"`)) {
		apiErr := &APIError{}
		if err := json.Unmarshal(body, apiErr); err == nil && apiErr.Exception != "" {
			return nil, apiErr
		}
	}
	return body, nil
}
