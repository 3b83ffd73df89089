package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWithDatabase 测试数据库集成（需要 DATABASE_URL 环境变量）
func TestWithDatabase(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping database integration tests")
	}

	db, err := Open(dbURL)
	require.NoError(t, err, "数据库连接失败")
	defer db.SQL.Close()

	ctx := context.Background()
	require.NoError(t, db.Ping(ctx), "数据库 Ping 失败")
	require.NoError(t, db.RunMigrations(ctx), "迁移失败")

	t.Run("EventDelivery_Idempotency", func(t *testing.T) {
		testEventDeliveryIdempotency(t, db)
	})

	t.Run("RepoMirror_CRUD", func(t *testing.T) {
		testRepoMirror(t, db)
	})

	t.Run("BindUser_Identity", func(t *testing.T) {
		testBindUserIdentity(t, db)
	})

	t.Run("BindUser_ConcurrentEnsure", func(t *testing.T) {
		testBindUserConcurrentEnsure(t, db)
	})
}

// testEventDeliveryIdempotency 测试事件去重功能
func testEventDeliveryIdempotency(t *testing.T, db *DB) {
	ctx := context.Background()
	source := "github.issues"
	deliveryID := "test-delivery-" + time.Now().Format("20060102150405")
	payloadSHA := "abc123"

	err := db.UpsertEventDelivery(ctx, source, "issues", deliveryID, payloadSHA, "queued")
	require.NoError(t, err, "首次插入事件失败")

	isDup, err := db.IsDuplicateDelivery(ctx, source, deliveryID, payloadSHA)
	require.NoError(t, err, "检查重复失败")
	assert.True(t, isDup, "应该识别为重复事件")

	// 不同 payloadSHA 不应该重复
	isDup2, err := db.IsDuplicateDelivery(ctx, source, deliveryID, "different-sha")
	require.NoError(t, err)
	assert.False(t, isDup2, "不同 payload 不应识别为重复")
}

// testRepoMirror 测试仓库与 Issue 镜像的读写
func testRepoMirror(t *testing.T, db *DB) {
	ctx := context.Background()
	suffix := time.Now().Format("150405")

	codeApp, err := db.UpsertCodeApplication(ctx, time.Now().UnixNano()%1_000_000_000, "test-org-"+suffix)
	require.NoError(t, err, "写入 code application 失败")

	fullName := fmt.Sprintf("test-org-%s/demo", suffix)
	repo, err := db.UpsertRepo(ctx, codeApp.ID, time.Now().UnixNano()%1_000_000_000, fullName, "测试仓库", nil)
	require.NoError(t, err, "写入仓库失败")
	assert.Equal(t, fullName, repo.Name)
	assert.Equal(t, RepoStatusActive, repo.Status)

	// 同一外部 ID 再次 upsert 不产生新行
	again, err := db.UpsertRepo(ctx, codeApp.ID, repo.RepoExternalID, fullName, "更新后的描述", nil)
	require.NoError(t, err)
	assert.Equal(t, repo.ID, again.ID)

	issue, created, err := db.CreateIssueIfAbsent(ctx, repo.ID, 1, "first", "body", nil)
	require.NoError(t, err)
	assert.True(t, created)

	// 回放同一 Issue 返回已有行
	_, created2, err := db.CreateIssueIfAbsent(ctx, repo.ID, 1, "first", "body", nil)
	require.NoError(t, err)
	assert.False(t, created2, "重复创建应返回已有行")

	msgID := "om_test_" + suffix
	require.NoError(t, db.SetIssueMessageID(ctx, issue.ID, msgID))
	found, err := db.FindIssueByMessageID(ctx, msgID)
	require.NoError(t, err, "按消息 ID 查找 Issue 失败")
	assert.Equal(t, issue.ID, found.ID)
}

// testBindUserIdentity 测试身份绑定与反向解析
func testBindUserIdentity(t *testing.T, db *DB) {
	ctx := context.Background()
	suffix := time.Now().Format("150405.000")
	login := "gh-user-" + suffix
	openID := "ou_" + suffix

	ghBind, created, err := db.EnsureBindUser(ctx, PlatformGitHub, login, login)
	require.NoError(t, err)
	assert.True(t, created)

	// 同一身份再次 ensure 不新建
	_, created2, err := db.EnsureBindUser(ctx, PlatformGitHub, login, login)
	require.NoError(t, err)
	assert.False(t, created2)

	require.NoError(t, db.LinkBindUser(ctx, ghBind.UserID, PlatformLark, openID))
	require.NoError(t, db.SetBindUserToken(ctx, PlatformGitHub, login, "gho_test"))

	gotLogin, token, err := db.ResolveCodeLogin(ctx, openID)
	require.NoError(t, err, "反向解析 GitHub 身份失败")
	assert.Equal(t, login, gotLogin)
	assert.Equal(t, "gho_test", token)

	gotOpenID, err := db.ResolveIMOpenID(ctx, login)
	require.NoError(t, err)
	assert.Equal(t, openID, gotOpenID)
}

// testBindUserConcurrentEnsure 并发 ensure 同一身份时不得留下孤儿 user 行
func testBindUserConcurrentEnsure(t *testing.T, db *DB) {
	ctx := context.Background()
	name := "race-user-" + time.Now().Format("150405.000")

	const n = 8
	binds := make([]*BindUser, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			binds[i], _, errs[i] = db.EnsureBindUser(ctx, PlatformGitHub, name, name)
		}(i)
	}
	wg.Wait()

	// 所有并发调用成功并解析到同一内部用户
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}
	for i := 1; i < n; i++ {
		assert.Equal(t, binds[0].UserID, binds[i].UserID)
	}

	var users int
	require.NoError(t, db.SQL.QueryRowContext(ctx,
		`SELECT count(*) FROM users WHERE name=$1`, name).Scan(&users))
	assert.Equal(t, 1, users, "输掉插入竞争的事务不应留下孤儿 user 行")
}
