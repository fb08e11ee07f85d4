// votebench 对运行中的服务发起并发投票，检查每个用户在一个投票中只成功一次
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"ovozber-backend/config"
	"ovozber-backend/logging"
	"ovozber-backend/model"
)

type options struct {
	baseURL     string
	pollID      uint
	candidateID uint
	users       int
	repeat      int
	firstUserID int64
}

type result struct {
	mu       sync.Mutex
	statuses map[int]int
	reasons  map[model.RejectReason]int
	errors   int
}

func (r *result) record(status int, reason model.RejectReason, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errors++
		return
	}
	r.statuses[status]++
	if reason != "" {
		r.reasons[reason]++
	}
}

func main() {
	var opts options
	var pollID, candidateID uint64
	flag.StringVar(&opts.baseURL, "url", "http://localhost:8080", "服务地址")
	flag.Uint64Var(&pollID, "poll", 1, "投票ID")
	flag.Uint64Var(&candidateID, "candidate", 1, "候选人ID")
	flag.IntVar(&opts.users, "users", 50, "并发用户数")
	flag.IntVar(&opts.repeat, "repeat", 5, "每个用户重复提交次数")
	flag.Int64Var(&opts.firstUserID, "first-user", 900000, "第一个测试用户的 telegram_id")
	flag.Parse()
	opts.pollID = uint(pollID)
	opts.candidateID = uint(candidateID)

	log := logging.New(config.LoggingConfig{Level: "info", Format: "text"})
	client := &http.Client{Timeout: 10 * time.Second}

	for i := 0; i < opts.users; i++ {
		if err := register(client, opts.baseURL, opts.firstUserID+int64(i)); err != nil {
			log.Error("注册测试用户失败", "telegram_id", opts.firstUserID+int64(i), "error", err)
			os.Exit(1)
		}
	}
	log.Info("测试用户已注册", "users", opts.users)

	res := run(client, opts)
	report(log, opts, res)

	if res.statuses[http.StatusCreated] > opts.users {
		log.Error("出现重复投票", "created", res.statuses[http.StatusCreated], "users", opts.users)
		os.Exit(1)
	}
}

func run(client *http.Client, opts options) *result {
	res := &result{statuses: make(map[int]int), reasons: make(map[model.RejectReason]int)}
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < opts.users; i++ {
		for j := 0; j < opts.repeat; j++ {
			wg.Add(1)
			go func(telegramID int64) {
				defer wg.Done()
				<-start
				status, reason, err := castVote(client, opts.baseURL, model.CastVoteRequest{
					TelegramID:  telegramID,
					PollID:      opts.pollID,
					CandidateID: opts.candidateID,
				})
				res.record(status, reason, err)
			}(opts.firstUserID + int64(i))
		}
	}

	close(start)
	wg.Wait()
	return res
}

func report(log *slog.Logger, opts options, res *result) {
	codes := make([]int, 0, len(res.statuses))
	for code := range res.statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	log.Info("压测完成", "requests", opts.users*opts.repeat, "transport_errors", res.errors)
	for _, code := range codes {
		log.Info("状态码", "status", code, "count", res.statuses[code])
	}
	for reason, n := range res.reasons {
		log.Info("拒绝原因", "reason", reason, "count", n)
	}
}

func register(client *http.Client, baseURL string, telegramID int64) error {
	resp, err := postJSON(client, baseURL+"/api/users/register", model.RegisterUserRequest{
		TelegramID: telegramID,
		FullName:   fmt.Sprintf("Bench %d", telegramID),
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func castVote(client *http.Client, baseURL string, req model.CastVoteRequest) (int, model.RejectReason, error) {
	resp, err := postJSON(client, baseURL+"/api/votes", req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	var body model.VoteResult
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body.Reason, nil
}

func postJSON(client *http.Client, url string, payload interface{}) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return client.Post(url, "application/json", bytes.NewReader(data))
}
