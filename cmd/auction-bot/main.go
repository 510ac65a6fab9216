package main

import (
	"context"
	"log"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/azatbro/art-auction-bot/internal/adapter/auctionpresenter"
	"github.com/azatbro/art-auction-bot/internal/auction"
	appcfg "github.com/azatbro/art-auction-bot/internal/config"
	"github.com/azatbro/art-auction-bot/internal/msgcat"
	"github.com/azatbro/art-auction-bot/internal/obslog"
	"github.com/azatbro/art-auction-bot/internal/tgfast"
	"github.com/azatbro/art-auction-bot/pkg/auctiondto"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	cat, err := msgcat.New(cfg.TemplateDir)
	if err != nil {
		logger.Fatal("msgcat init error", zap.Error(err))
	}

	client := tgfast.NewClient(cfg.TgAPIBase, cfg.BotToken)
	rules := cfg.Rules()
	formatter := auctionpresenter.NewFormatter(cat, rules, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store *auction.Store
	if cfg.RedisURL != "" {
		store, err = auction.NewStoreFromURL(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis init error", zap.Error(err))
		}
	}
	var repo *auction.Repository
	if cfg.DatabaseURL != "" {
		repo, err = auction.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres init error", zap.Error(err))
		}
	}

	factory := func(room string) auction.Notifier {
		chatID, err := strconv.ParseInt(room, 10, 64)
		if err != nil {
			logger.Error("bad room id", zap.String("room", room), zap.Error(err))
			return nil
		}
		send := func(text string, buttons [][]auctiondto.Button) (int64, error) {
			cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return client.SendMessage(cctx, chatID, text, toMarkup(buttons))
		}
		edit := func(messageID int64, text string, buttons [][]auctiondto.Button) error {
			cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return client.EditMessageText(cctx, chatID, messageID, text, toMarkup(buttons))
		}
		return auctionpresenter.NewPresenter(formatter, rules, send, edit, logger)
	}

	opts := []auction.ManagerOption{auction.WithLogger(logger)}
	if store != nil {
		opts = append(opts, auction.WithStore(store))
	}
	if repo != nil {
		opts = append(opts, auction.WithRepository(repo))
	}
	mgr := auction.NewManager(rules, factory, opts...)

	bot := &bot{cfg: cfg, client: client, mgr: mgr, fmt: formatter, logger: logger}
	poller := tgfast.NewPoller(client, bot.handleUpdate, cfg.PollTimeoutSec, logger)

	logger.Info("auction bot started")
	if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("poller stopped", zap.Error(err))
	}

	mgr.CloseAll()
	if store != nil {
		_ = store.Close()
	}
	if repo != nil {
		_ = repo.Close()
	}
	logger.Info("auction bot stopped")
}

type bot struct {
	cfg    *appcfg.AppConfig
	client *tgfast.Client
	mgr    *auction.Manager
	fmt    *auctionpresenter.Formatter
	logger *zap.Logger
}

func (b *bot) handleUpdate(ctx context.Context, upd tgfast.Update) {
	switch {
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		b.handleMessage(ctx, upd.Message)
	}
}

func (b *bot) handleMessage(ctx context.Context, msg *tgfast.Message) {
	if msg.From == nil {
		return
	}
	room := strconv.FormatInt(msg.Chat.ID, 10)
	if !b.chatAllowed(room) {
		return
	}
	userID := strconv.FormatInt(msg.From.ID, 10)
	name := displayName(msg.From)

	if len(msg.Photo) > 0 {
		b.handlePhoto(ctx, msg, room, userID, name)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" || !strings.HasPrefix(text, "/") {
		return
	}
	cmd := strings.ToLower(strings.Fields(text)[0])
	// group chats suffix commands with the bot name
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/start", "/help":
		b.reply(ctx, msg.Chat.ID, b.fmt.Help())
	case "/join":
		sess := b.mgr.GetOrCreate(room)
		st, err := sess.Join(userID, name)
		if err != nil {
			b.replyErr(ctx, msg.Chat.ID, err)
			return
		}
		b.reply(ctx, msg.Chat.ID, b.fmt.Joined(st.Name, st.Money))
	case "/loan":
		sess := b.mgr.GetOrCreate(room)
		money, err := sess.GrantLoan(userID)
		if err != nil {
			b.replyErr(ctx, msg.Chat.ID, err)
			return
		}
		b.reply(ctx, msg.Chat.ID, b.fmt.LoanGranted(money))
	case "/status":
		sess, ok := b.mgr.Get(room)
		if !ok {
			b.reply(ctx, msg.Chat.ID, b.fmt.Help())
			return
		}
		st, err := sess.Status(userID)
		if err != nil {
			b.replyErr(ctx, msg.Chat.ID, err)
			return
		}
		b.reply(ctx, msg.Chat.ID, b.fmt.Status(auctionpresenter.ToDTOStatus(&st)))
	case "/restart":
		b.mgr.Restart(room)
		b.reply(ctx, msg.Chat.ID, b.fmt.RestartDone())
	}
}

func (b *bot) handlePhoto(ctx context.Context, msg *tgfast.Message, room, userID, name string) {
	// largest size is last
	fileID := msg.Photo[len(msg.Photo)-1].FileID
	title := strings.TrimSpace(msg.Caption)

	sess := b.mgr.GetOrCreate(room)
	created, err := sess.SubmitArtwork(userID, name, title, fileID)
	if err != nil {
		b.replyErr(ctx, msg.Chat.ID, err)
		return
	}
	b.reply(ctx, msg.Chat.ID, b.fmt.SubmitAccepted(created))
}

func (b *bot) handleCallback(ctx context.Context, cb *tgfast.CallbackQuery) {
	if cb.From == nil || cb.Message == nil {
		return
	}
	room := strconv.FormatInt(cb.Message.Chat.ID, 10)
	if !b.chatAllowed(room) {
		return
	}
	userID := strconv.FormatInt(cb.From.ID, 10)

	sess, ok := b.mgr.Get(room)
	if !ok {
		b.answer(ctx, cb.ID, "", false)
		return
	}

	parts := strings.Split(cb.Data, ":")
	switch {
	case len(parts) == 3 && parts[0] == "bid":
		lotID, err1 := strconv.Atoi(parts[1])
		amount, err2 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil {
			b.answer(ctx, cb.ID, "", false)
			return
		}
		if err := sess.Bid(userID, lotID, amount); err != nil {
			b.answer(ctx, cb.ID, b.fmt.Reject(err), true)
			return
		}
		b.answer(ctx, cb.ID, b.fmt.BidAck(), false)
	case len(parts) == 2 && parts[0] == "pass":
		lotID, err := strconv.Atoi(parts[1])
		if err != nil {
			b.answer(ctx, cb.ID, "", false)
			return
		}
		if err := sess.Pass(userID, lotID); err != nil {
			b.answer(ctx, cb.ID, b.fmt.Reject(err), true)
			return
		}
		b.answer(ctx, cb.ID, b.fmt.PassAck(), false)
	default:
		b.answer(ctx, cb.ID, "", false)
	}
}

func (b *bot) chatAllowed(room string) bool {
	if len(b.cfg.AllowedChats) == 0 {
		return true
	}
	for _, c := range b.cfg.AllowedChats {
		if c == room {
			return true
		}
	}
	return false
}

func (b *bot) reply(ctx context.Context, chatID int64, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := b.client.SendMessage(cctx, chatID, text, nil); err != nil {
		b.logger.Warn("tg_send_error", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *bot) replyErr(ctx context.Context, chatID int64, err error) {
	text := b.fmt.Reject(err)
	if text == "" {
		b.logger.Warn("command_error", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}
	b.reply(ctx, chatID, text)
}

func (b *bot) answer(ctx context.Context, callbackID, text string, alert bool) {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := b.client.AnswerCallbackQuery(cctx, callbackID, text, alert); err != nil {
		b.logger.Warn("tg_answer_error", zap.Error(err))
	}
}

func displayName(u *tgfast.User) string {
	if n := strings.TrimSpace(u.FirstName); n != "" {
		return n
	}
	if n := strings.TrimSpace(u.Username); n != "" {
		return n
	}
	return "player " + strconv.FormatInt(u.ID, 10)
}

func toMarkup(buttons [][]auctiondto.Button) *tgfast.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	markup := &tgfast.InlineKeyboardMarkup{}
	for _, row := range buttons {
		if len(row) == 0 {
			continue
		}
		var line []tgfast.InlineKeyboardButton
		for _, btn := range row {
			line = append(line, tgfast.InlineKeyboardButton{Text: btn.Text, CallbackData: btn.Data})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, line)
	}
	if len(markup.InlineKeyboard) == 0 {
		return nil
	}
	return markup
}
