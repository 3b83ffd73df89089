package card

// manualEntry documents one chat command for the help cards.
type manualEntry struct {
	Verb    string
	Usage   string
	Summary string
}

var manualEntries = []manualEntry{
	{"/help", "/help", "显示全部可用命令"},
	{"/man", "/man [command]", "显示某个命令的详细说明"},
	{"/match", "/match <repo_url> <chat_name>", "将一个仓库绑定到指定群组"},
	{"/new", "/new <name>", "为当前仓库创建并绑定一个新群组"},
	{"/unbind", "/unbind", "解除当前群组与仓库的绑定"},
	{"/view", "/view", "打开当前 Issue / PR 的 GitHub 页面"},
	{"/setting", "/setting", "查看当前群组的绑定信息"},
	{"/visit", "/visit <visibility>", "修改仓库可见性（public / private）"},
	{"/access", "/access <permission> <username>", "为用户添加仓库协作权限"},
	{"/rename", "/rename <name>", "重命名当前实体（仓库或 Issue）"},
	{"/edit", "/edit <description>", "修改仓库描述"},
	{"/link", "/link <url>", "设置仓库主页链接"},
	{"/label", "/label <label>", "为当前 Issue 添加标签"},
	{"/archive", "/archive", "归档当前仓库"},
	{"/unarchive", "/unarchive", "取消归档当前仓库"},
	{"/insight", "/insight", "查看仓库活跃度概览"},
	{"/close", "/close", "关闭当前 Issue / PR"},
	{"/reopen", "/reopen", "重新打开当前 Issue / PR"},
	{"@GitMaya", "@GitMaya <text>", "与机器人对话"},
}

// Help renders the full command manual.
func Help() string {
	elements := make([]map[string]any, 0, len(manualEntries)+1)
	elements = append(elements, markdown("在仓库绑定的群、或 Issue / PR 卡片的回复串中发送命令："))
	for _, e := range manualEntries {
		elements = append(elements, markdown("**`"+e.Usage+"`**  "+e.Summary))
	}
	return render(base("📖 GitMaya 使用手册", "blue", elements))
}

// Manual renders the manual for a single command, falling back to the full
// help card when the verb is unknown or empty.
func Manual(verb string) string {
	if verb != "" && verb[0] != '/' && verb[0] != '@' {
		verb = "/" + verb
	}
	for _, e := range manualEntries {
		if e.Verb == verb {
			return render(base("📖 "+e.Verb, "blue", []map[string]any{
				markdown("**用法**：`" + e.Usage + "`"),
				markdown(e.Summary),
			}))
		}
	}
	return Help()
}
