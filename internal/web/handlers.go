package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lLiuRunze/mail-agent/internal/config"
	"github.com/lLiuRunze/mail-agent/internal/logger"
	"github.com/lLiuRunze/mail-agent/internal/mailer"
	"github.com/lLiuRunze/mail-agent/internal/nlu"
	"github.com/lLiuRunze/mail-agent/internal/task"
)

// domainProviders 常见邮箱域名到服务商预设的映射
var domainProviders = map[string]string{
	"163.com":     "163",
	"126.com":     "163",
	"qq.com":      "qq",
	"foxmail.com": "qq",
	"gmail.com":   "gmail",
	"outlook.com": "outlook",
	"hotmail.com": "outlook",
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Provider string `json:"provider"`

	// 自定义服务商时显式给出服务器
	IMAPServer string `json:"imap_server"`
	IMAPPort   int    `json:"imap_port"`
	SMTPServer string `json:"smtp_server"`
	SMTPPort   int    `json:"smtp_port"`
}

// resolveProvider 确定账号的服务器参数
// 优先显式 provider，其次按域名推断，custom 必须带服务器地址
func (s *Server) resolveProvider(req *loginRequest) (config.ProviderConfig, error) {
	name := req.Provider
	if name == "" || name == "auto" {
		if at := strings.LastIndex(req.Email, "@"); at != -1 {
			name = domainProviders[strings.ToLower(req.Email[at+1:])]
		}
	}

	if p, ok := s.cfg.Mail.Providers[name]; ok {
		return p, nil
	}

	if req.IMAPServer == "" || req.SMTPServer == "" {
		return config.ProviderConfig{}, &nlu.ValidationError{
			Field:  "provider",
			Reason: "无法识别邮箱服务商，请选择 custom 并填写 IMAP/SMTP 服务器",
		}
	}
	p := config.ProviderConfig{
		IMAPServer: req.IMAPServer,
		IMAPPort:   req.IMAPPort,
		SMTPServer: req.SMTPServer,
		SMTPPort:   req.SMTPPort,
	}
	if p.IMAPPort == 0 {
		p.IMAPPort = 993
	}
	if p.SMTPPort == 0 {
		p.SMTPPort = 465
	}
	return p, nil
}

// loginHandler 登录：连上邮箱验证凭据后建立会话
func (s *Server) loginHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	provider, err := s.resolveProvider(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client := mailer.NewIMAPClient(mailer.Account{
		Address:  req.Email,
		Password: req.Password,
		IMAPHost: provider.IMAPServer,
		IMAPPort: provider.IMAPPort,
		SMTPHost: provider.SMTPServer,
		SMTPPort: provider.SMTPPort,
	})

	ctx := c.Request.Context()
	if _, err := client.Folders(ctx); err != nil {
		client.Close()
		logger.WarnCtx(ctx).Err(err).Str("email", req.Email).Msg("登录验证失败")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "邮箱登录失败，请检查账号和授权码"})
		return
	}

	exec := task.NewExecutor(req.Email, client, s.gen, nlu.NewResolver(s.cfg.Mail.FolderAliases), task.Options{
		ArchiveFolder:        s.cfg.Mail.ArchiveFolder,
		ListLimit:            s.cfg.Mail.MaxFetch,
		SummarizeConcurrency: s.cfg.Generator.MaxConcurrency,
		History:              s.hist,
		Metrics:              s.metrics,
	})
	s.registry.Put(&Session{account: req.Email, mail: client, exec: exec})

	ttl := time.Duration(s.cfg.Web.TokenTTL) * time.Minute
	token, err := issueToken(req.Email, s.cfg.Web.JWTSecret, ttl)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logger.InfoCtx(ctx).Str("email", req.Email).Msg("账号登录成功")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"email":   req.Email,
		"token":   token,
	})
}

func (s *Server) logoutHandler(c *gin.Context) {
	account := c.GetString(accountKey)
	s.registry.Remove(account)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "已退出登录"})
}

func (s *Server) checkAuthHandler(c *gin.Context) {
	account := c.GetString(accountKey)
	c.JSON(http.StatusOK, gin.H{
		"authenticated": s.registry.Get(account) != nil,
		"email":         account,
	})
}

// session 取当前请求的会话，不在线时响应 401
func (s *Server) session(c *gin.Context) *Session {
	sess := s.registry.Get(c.GetString(accountKey))
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "会话已失效，请重新登录"})
		c.Abort()
		return nil
	}
	return sess
}

// outcomeResponse 指令产出的统一响应格式
func outcomeResponse(out *task.Outcome) gin.H {
	resp := gin.H{
		"success":    out.Result != nil && out.Result.Success,
		"intent":     out.Intent,
		"parameters": out.Params,
		"result":     out.Result,
		"trace_id":   out.TraceID,
	}
	if out.Result != nil {
		resp["message"] = out.Result.Message
	}
	if out.Preview != nil {
		resp["preview"] = out.Preview
	}
	return resp
}

// refreshSnapshot 列表类结果刷新会话快照
func refreshSnapshot(sess *Session, out *task.Outcome) {
	if out.Result == nil || !out.Result.Success {
		return
	}
	if ld, ok := out.Result.Data.(*task.ListData); ok {
		snap := sess.UpdateSnapshot(ld.IDs())
		out.Result.Data = gin.H{
			"count":            ld.Count,
			"query":            ld.Query,
			"emails":           ld.Emails,
			"snapshot_version": snap.Version,
		}
	}
}

// chatHandler 自然语言指令入口
func (s *Server) chatHandler(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}

	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out := sess.Executor().Handle(c.Request.Context(), req.Message, sess.Snapshot())
	refreshSnapshot(sess, out)
	c.JSON(http.StatusOK, outcomeResponse(out))
}

// confirmHandler 确认发送草稿，草稿由前端完整传回（正文可能已编辑）
func (s *Server) confirmHandler(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}

	var draft task.PreviewDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if draft.Account != "" && draft.Account != sess.Account() {
		c.JSON(http.StatusForbidden, gin.H{"error": "草稿不属于当前账号"})
		return
	}

	res := sess.Executor().ConfirmDraft(c.Request.Context(), &draft)
	c.JSON(http.StatusOK, gin.H{"success": res.Success, "result": res, "message": res.Message})
}

// listEmailsHandler 拉取邮件列表并重建序号快照
func (s *Server) listEmailsHandler(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit <= 0 || limit > s.cfg.Mail.MaxFetch {
		limit = s.cfg.Mail.MaxFetch
	}

	emails, err := sess.mail.List(c.Request.Context(), mailer.ListOptions{
		Folder: c.Query("folder"),
		Limit:  limit,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	ld := task.BuildListData(emails)
	snap := sess.UpdateSnapshot(ld.IDs())
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"count":            ld.Count,
		"emails":           ld.Emails,
		"snapshot_version": snap.Version,
	})
}

func (s *Server) getEmailHandler(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}

	email, err := sess.mail.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusBadGateway
		if isNotFoundErr(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "email": email})
}

// execute 按意图直接执行并响应
func (s *Server) execute(c *gin.Context, sess *Session, intent nlu.Intent, p *nlu.Params) {
	out := sess.Executor().Execute(c.Request.Context(), intent, p, sess.Snapshot())
	refreshSnapshot(sess, out)
	c.JSON(http.StatusOK, outcomeResponse(out))
}

// replyHandler 用给定正文直接回复，相当于带编辑内容的确认路径
func (s *Server) replyHandler(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	draft := &task.PreviewDraft{
		Type:          task.DraftReply,
		Account:       sess.Account(),
		SourceEmailID: c.Param("id"),
		Content:       req.Content,
	}
	res := sess.Executor().ConfirmDraft(c.Request.Context(), draft)
	c.JSON(http.StatusOK, gin.H{"success": res.Success, "result": res, "message": res.Message})
}

func (s *Server) forwardHandler(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}

	var req struct {
		Recipients []string `json:"recipients" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.execute(c, sess, nlu.IntentForwardEmail, &nlu.Params{
		EmailID:    c.Param("id"),
		Recipients: req.Recipients,
	})
}

func (s *Server) archiveHandler(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}

	var req struct {
		Folder string `json:"folder"`
	}
	c.ShouldBindJSON(&req)
	s.execute(c, sess, nlu.IntentArchiveEmail, &nlu.Params{
		EmailID: c.Param("id"),
		Folder:  req.Folder,
	})
}

func (s *Server) deleteHandler(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	s.execute(c, sess, nlu.IntentDeleteEmail, &nlu.Params{EmailID: c.Param("id")})
}

func (s *Server) markHandler(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status != "read" && req.Status != "unread" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status 只能是 read 或 unread"})
		return
	}
	s.execute(c, sess, nlu.IntentMarkEmail, &nlu.Params{
		EmailID: c.Param("id"),
		Status:  req.Status,
	})
}

func (s *Server) summarizeHandler(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	s.execute(c, sess, nlu.IntentSummarizeEmail, &nlu.Params{EmailID: c.Param("id")})
}

func (s *Server) analyzePriorityHandler(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	s.execute(c, sess, nlu.IntentAnalyzePriority, &nlu.Params{EmailID: c.Param("id")})
}

// generateReplyHandler 生成回复草稿但不发送
func (s *Server) generateReplyHandler(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}

	var req struct {
		Tone string `json:"tone"`
	}
	c.ShouldBindJSON(&req)
	s.execute(c, sess, nlu.IntentReplyEmail, &nlu.Params{
		EmailID: c.Param("id"),
		Tone:    req.Tone,
	})
}

// sendEmailHandler 直接发送一封写好的邮件
func (s *Server) sendEmailHandler(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}

	var req struct {
		To      []string `json:"to" binding:"required"`
		Subject string   `json:"subject" binding:"required"`
		Content string   `json:"content" binding:"required"`
		Cc      []string `json:"cc"`
		Bcc     []string `json:"bcc"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := sess.mail.Send(ctx, req.To, req.Subject, req.Content, req.Cc, req.Bcc); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "邮件已发送给 " + strings.Join(req.To, ", "),
	})
}

// batchHandler 批量操作的统一入口
func (s *Server) batchHandler(intent nlu.Intent) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := s.session(c)
		if sess == nil {
			return
		}

		var req struct {
			EmailIDs   []string `json:"email_ids"`
			Count      int      `json:"count"`
			Folder     string   `json:"folder"`
			Recipients []string `json:"recipients"`
			Status     string   `json:"status"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		s.execute(c, sess, intent, &nlu.Params{
			EmailIDs:   req.EmailIDs,
			Count:      req.Count,
			Folder:     req.Folder,
			Recipients: req.Recipients,
			Status:     req.Status,
		})
	}
}

// historyHandler 查询账号的指令历史
func (s *Server) historyHandler(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	if s.hist == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "entries": []any{}})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := s.hist.List(c.Request.Context(), sess.Account(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "entries": entries})
}

func isNotFoundErr(err error) bool {
	return errors.Is(err, mailer.ErrNotFound)
}
