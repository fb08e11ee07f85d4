package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ovozber-backend/cache"
	"ovozber-backend/model"
	"ovozber-backend/service"
)

// ErrUnexpectedEvent 当前状态不接受该输入
var ErrUnexpectedEvent = errors.New("event not allowed in current state")

// UserDirectory 用户注册与订阅
type UserDirectory interface {
	RegisterOrUpdate(ctx context.Context, req model.RegisterUserRequest) (*model.UserSummary, bool, error)
	MarkSubscribed(ctx context.Context, telegramID int64) error
	SubscriptionStatus(ctx context.Context, req model.CheckSubscriptionRequest) (*model.SubscriptionStatus, error)
}

// Catalog 投票、地区、候选人列表
type Catalog interface {
	ListChannels(ctx context.Context) ([]model.ChannelSummary, error)
	ListPolls(ctx context.Context, includeClosed bool) ([]model.PollSummary, error)
	ListGroups(ctx context.Context, pollID uint) ([]model.RegionSummary, error)
	ListDistricts(ctx context.Context, regionID uint) ([]model.DistrictSummary, error)
	ListCandidatesByDistrict(ctx context.Context, districtID uint) ([]model.CandidateSummary, error)
}

// Voter 提交投票
type Voter interface {
	CastVote(ctx context.Context, req model.CastVoteRequest) (*model.VoteResult, error)
}

// Deps 状态机依赖
type Deps struct {
	Users    UserDirectory
	Catalog  Catalog
	Voter    Voter
	Sessions cache.SessionStore
	Clock    service.Clock
}

// 各状态允许的输入，start 和 cancel 任何时候都可用
var transitions = map[State]map[EventKind]bool{
	StateCheckingSubscription: {EventConfirmSubscription: true, EventBack: true},
	StateSelectingPoll:        {EventChoosePoll: true, EventBack: true},
	StateSelectingRegion:      {EventChooseRegion: true, EventBack: true},
	StateSelectingDistrict:    {EventChooseDistrict: true, EventBack: true},
	StateSelectingCandidate:   {EventChooseCandidate: true, EventBack: true},
}

// Machine 聊天投票流程
//
// 每条入站消息对应一次 Handle 调用：读取会话，执行一次状态转换，保存会话并返回下一条提示。
type Machine struct {
	deps        Deps
	sessions    sessionRepo
	defaultLang string
	log         *slog.Logger
}

// NewMachine 创建状态机
func NewMachine(deps Deps, defaultLang string, log *slog.Logger) *Machine {
	if !SupportedLanguage(defaultLang) {
		defaultLang = LangUzbek
	}
	if deps.Clock == nil {
		deps.Clock = service.SystemClock{}
	}
	return &Machine{
		deps:        deps,
		sessions:    sessionRepo{store: deps.Sessions},
		defaultLang: defaultLang,
		log:         log,
	}
}

// Handle 处理一条消息
func (m *Machine) Handle(ctx context.Context, telegramID int64, ev Event) (*Prompt, error) {
	session, found, err := m.sessions.load(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	lang := m.defaultLang
	if found && SupportedLanguage(session.Language) {
		lang = session.Language
	}
	if SupportedLanguage(ev.Language) {
		lang = ev.Language
	}

	if ev.Kind == EventStart {
		return m.start(ctx, telegramID, lang, ev)
	}
	if !found || session.State == StateFinished {
		if ev.Kind == EventCancel {
			return m.ended(lang, msgCancelled), nil
		}
		return m.ended(lang, msgRestart), nil
	}
	session.Language = lang

	if ev.Kind == EventCancel {
		if err := m.sessions.delete(ctx, telegramID); err != nil {
			return nil, err
		}
		m.log.Info("会话已取消", "telegram_id", telegramID, "state", session.State)
		return m.ended(lang, msgCancelled), nil
	}

	if !transitions[session.State][ev.Kind] {
		return nil, fmt.Errorf("%w: %s in %s", ErrUnexpectedEvent, ev.Kind, session.State)
	}

	from := session.State
	var prompt *Prompt
	switch ev.Kind {
	case EventConfirmSubscription:
		prompt, err = m.confirmSubscription(ctx, session)
	case EventChoosePoll:
		prompt, err = m.choosePoll(ctx, session, ev.ID)
	case EventChooseRegion:
		prompt, err = m.chooseRegion(ctx, session, ev.ID)
	case EventChooseDistrict:
		prompt, err = m.chooseDistrict(ctx, session, ev.ID)
	case EventChooseCandidate:
		prompt, err = m.chooseCandidate(ctx, session, ev.ID)
	case EventBack:
		prompt, err = m.back(ctx, session)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedEvent, ev.Kind)
	}
	if err != nil {
		return nil, err
	}

	m.log.Debug("会话状态变更", "telegram_id", telegramID, "event", ev.Kind, "from", from, "to", prompt.State)
	return prompt, m.persist(ctx, session, prompt)
}

func (m *Machine) persist(ctx context.Context, session *Session, prompt *Prompt) error {
	session.State = prompt.State
	if prompt.State == StateFinished {
		return m.sessions.delete(ctx, session.TelegramID)
	}
	session.UpdatedAt = m.deps.Clock.Now()
	return m.sessions.save(ctx, session)
}

func (m *Machine) start(ctx context.Context, telegramID int64, lang string, ev Event) (*Prompt, error) {
	if _, _, err := m.deps.Users.RegisterOrUpdate(ctx, model.RegisterUserRequest{
		TelegramID: telegramID,
		Username:   ev.Username,
		FullName:   ev.FullName,
	}); err != nil {
		return nil, err
	}

	status, err := m.deps.Users.SubscriptionStatus(ctx, model.CheckSubscriptionRequest{TelegramID: telegramID})
	if err != nil {
		return nil, err
	}

	session := &Session{TelegramID: telegramID, Language: lang}
	var prompt *Prompt
	if status.IsSubscribed {
		prompt, err = m.showPolls(ctx, session, "")
	} else {
		prompt, err = m.showChannels(ctx, session)
	}
	if err != nil {
		return nil, err
	}
	m.log.Info("会话开始", "telegram_id", telegramID, "state", prompt.State)
	return prompt, m.persist(ctx, session, prompt)
}

func (m *Machine) showChannels(ctx context.Context, s *Session) (*Prompt, error) {
	channels, err := m.deps.Catalog.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return m.showPolls(ctx, s, "")
	}

	options := make([]Option, 0, len(channels)+1)
	for _, ch := range channels {
		name := strings.TrimPrefix(ch.ChannelUsername, "@")
		options = append(options, Option{Label: "📢 " + ch.Title, URL: "https://t.me/" + name})
	}
	options = append(options, Option{Event: EventConfirmSubscription, Label: text(s.Language, msgCheckButton)})

	return &Prompt{
		Kind:    PromptChannels,
		State:   StateCheckingSubscription,
		Text:    text(s.Language, msgWelcome),
		Options: options,
	}, nil
}

func (m *Machine) confirmSubscription(ctx context.Context, s *Session) (*Prompt, error) {
	if err := m.deps.Users.MarkSubscribed(ctx, s.TelegramID); err != nil {
		return nil, err
	}
	return m.showPolls(ctx, s, text(s.Language, msgSubscribed))
}

func (m *Machine) showPolls(ctx context.Context, s *Session, notice string) (*Prompt, error) {
	s.PollID, s.RegionID, s.DistrictID = 0, 0, 0

	polls, err := m.deps.Catalog.ListPolls(ctx, true)
	if err != nil {
		return nil, err
	}
	if len(polls) == 0 {
		return &Prompt{
			Kind:    PromptEnded,
			State:   StateFinished,
			Notice:  notice,
			Text:    text(s.Language, msgNoPolls),
			Options: []Option{},
		}, nil
	}

	options := make([]Option, 0, len(polls))
	for _, p := range polls {
		icon := "🔴"
		if p.IsOpen {
			icon = "🟢"
		}
		options = append(options, Option{Event: EventChoosePoll, ID: p.ID, Label: icon + " " + p.Title})
	}
	return &Prompt{
		Kind:    PromptPolls,
		State:   StateSelectingPoll,
		Notice:  notice,
		Text:    text(s.Language, msgChoosePoll),
		Options: options,
	}, nil
}

func (m *Machine) choosePoll(ctx context.Context, s *Session, pollID uint) (*Prompt, error) {
	status, err := m.deps.Users.SubscriptionStatus(ctx, model.CheckSubscriptionRequest{
		TelegramID: s.TelegramID,
		PollID:     &pollID,
	})
	if err != nil {
		return nil, err
	}
	if status.HasVotedInPoll != nil && *status.HasVotedInPoll {
		return m.showPolls(ctx, s, text(s.Language, msgAlreadyVoted))
	}

	s.PollID = pollID
	return m.showRegions(ctx, s, "")
}

func (m *Machine) showRegions(ctx context.Context, s *Session, notice string) (*Prompt, error) {
	s.RegionID, s.DistrictID = 0, 0

	regions, err := m.deps.Catalog.ListGroups(ctx, s.PollID)
	if errors.Is(err, service.ErrPollNotFound) {
		return m.showPolls(ctx, s, text(s.Language, msgPollMissing))
	}
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return m.showPolls(ctx, s, text(s.Language, msgNoRegions))
	}

	options := make([]Option, 0, len(regions)+1)
	for _, r := range regions {
		options = append(options, Option{Event: EventChooseRegion, ID: r.ID, Label: "📍 " + r.Name})
	}
	options = append(options, Option{Event: EventBack, Label: text(s.Language, msgPollsButton)})

	return &Prompt{
		Kind:    PromptRegions,
		State:   StateSelectingRegion,
		Notice:  notice,
		Text:    text(s.Language, msgChooseRegion),
		Options: options,
	}, nil
}

func (m *Machine) chooseRegion(ctx context.Context, s *Session, regionID uint) (*Prompt, error) {
	regions, err := m.deps.Catalog.ListGroups(ctx, s.PollID)
	if err != nil && !errors.Is(err, service.ErrPollNotFound) {
		return nil, err
	}
	if !containsRegion(regions, regionID) {
		m.log.Warn("地区不属于当前投票", "poll_id", s.PollID, "region_id", regionID)
		return m.showRegions(ctx, s, text(s.Language, msgUnexpectedChoice))
	}

	districts, err := m.deps.Catalog.ListDistricts(ctx, regionID)
	if errors.Is(err, service.ErrRegionNotFound) {
		return m.showRegions(ctx, s, text(s.Language, msgUnexpectedChoice))
	}
	if err != nil {
		return nil, err
	}
	if len(districts) == 0 {
		return m.showRegions(ctx, s, text(s.Language, msgNoDistricts))
	}

	s.RegionID = regionID
	return m.renderDistricts(s, districts, ""), nil
}

func (m *Machine) showDistricts(ctx context.Context, s *Session, notice string) (*Prompt, error) {
	if s.RegionID == 0 {
		return m.showRegions(ctx, s, notice)
	}
	districts, err := m.deps.Catalog.ListDistricts(ctx, s.RegionID)
	if errors.Is(err, service.ErrRegionNotFound) || (err == nil && len(districts) == 0) {
		return m.showRegions(ctx, s, text(s.Language, msgNoDistricts))
	}
	if err != nil {
		return nil, err
	}
	return m.renderDistricts(s, districts, notice), nil
}

func (m *Machine) renderDistricts(s *Session, districts []model.DistrictSummary, notice string) *Prompt {
	s.DistrictID = 0

	options := make([]Option, 0, len(districts)+1)
	for _, d := range districts {
		options = append(options, Option{Event: EventChooseDistrict, ID: d.ID, Label: "🏘 " + d.Name})
	}
	options = append(options, Option{Event: EventBack, Label: text(s.Language, msgBack)})

	return &Prompt{
		Kind:    PromptDistricts,
		State:   StateSelectingDistrict,
		Notice:  notice,
		Text:    text(s.Language, msgChooseDistrict),
		Options: options,
	}
}

func (m *Machine) chooseDistrict(ctx context.Context, s *Session, districtID uint) (*Prompt, error) {
	districts, err := m.deps.Catalog.ListDistricts(ctx, s.RegionID)
	if err != nil && !errors.Is(err, service.ErrRegionNotFound) {
		return nil, err
	}
	if !containsDistrict(districts, districtID) {
		m.log.Warn("区县不属于当前地区", "region_id", s.RegionID, "district_id", districtID)
		return m.showDistricts(ctx, s, text(s.Language, msgUnexpectedChoice))
	}

	candidates, err := m.deps.Catalog.ListCandidatesByDistrict(ctx, districtID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return m.showDistricts(ctx, s, text(s.Language, msgNoCandidates))
	}

	s.DistrictID = districtID
	options := make([]Option, 0, len(candidates)+1)
	for _, c := range candidates {
		label := "👤 " + c.FullName
		if c.Position != "" {
			label += " - " + c.Position
		}
		options = append(options, Option{Event: EventChooseCandidate, ID: c.ID, Label: label})
	}
	options = append(options, Option{Event: EventBack, Label: text(s.Language, msgBack)})

	return &Prompt{
		Kind:    PromptCandidates,
		State:   StateSelectingCandidate,
		Text:    text(s.Language, msgChooseCandidate),
		Options: options,
	}, nil
}

// chooseCandidate 提交投票，资格在提交时重新检查
func (m *Machine) chooseCandidate(ctx context.Context, s *Session, candidateID uint) (*Prompt, error) {
	if s.PollID == 0 {
		return m.showPolls(ctx, s, text(s.Language, msgPollMissing))
	}

	result, err := m.deps.Voter.CastVote(ctx, model.CastVoteRequest{
		TelegramID:  s.TelegramID,
		PollID:      s.PollID,
		CandidateID: candidateID,
	})
	if err != nil {
		return nil, err
	}

	prompt := &Prompt{
		Kind:  PromptVoteResult,
		State: StateSelectingPoll,
		Vote:  result,
	}
	if result.Success {
		prompt.Text = text(s.Language, msgVoteSuccess)
		prompt.Options = []Option{{Event: EventBack, Label: text(s.Language, msgOtherPolls)}}
	} else {
		prompt.Text = reasonText(s.Language, result.Reason)
		prompt.Options = []Option{{Event: EventBack, Label: text(s.Language, msgPollsButton)}}
	}
	s.PollID, s.RegionID, s.DistrictID = 0, 0, 0
	return prompt, nil
}

func (m *Machine) back(ctx context.Context, s *Session) (*Prompt, error) {
	switch s.State {
	case StateCheckingSubscription:
		return m.showChannels(ctx, s)
	case StateSelectingDistrict:
		return m.showRegions(ctx, s, "")
	case StateSelectingCandidate:
		return m.showDistricts(ctx, s, "")
	default:
		return m.showPolls(ctx, s, "")
	}
}

func (m *Machine) ended(lang string, key messageKey) *Prompt {
	return &Prompt{
		Kind:    PromptEnded,
		State:   StateFinished,
		Text:    text(lang, key),
		Options: []Option{},
	}
}

func containsRegion(regions []model.RegionSummary, id uint) bool {
	for _, r := range regions {
		if r.ID == id {
			return true
		}
	}
	return false
}

func containsDistrict(districts []model.DistrictSummary, id uint) bool {
	for _, d := range districts {
		if d.ID == id {
			return true
		}
	}
	return false
}
