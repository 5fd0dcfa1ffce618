package core

// Group 是一个按代码命名的群组。成员集合由 Hub.mu 保护，
// 群组本身一旦创建便一直存在到服务器关闭。
type Group struct {
	Name    string           // 群组代码，区分大小写
	Clients map[*Client]bool // 成员列表
}

func NewGroup(name string) *Group {
	return &Group{
		Name:    name,
		Clients: make(map[*Client]bool),
	}
}

// AddClient 将客户端添加到群组，重复加入不产生任何效果
func (g *Group) AddClient(client *Client) {
	g.Clients[client] = true
}

// RemoveClient 将客户端从群组移除
func (g *Group) RemoveClient(client *Client) {
	delete(g.Clients, client)
}

func (g *Group) HasClient(client *Client) bool {
	return g.Clients[client]
}

// Members 返回成员的快照
func (g *Group) Members() []*Client {
	members := make([]*Client, 0, len(g.Clients))
	for c := range g.Clients {
		members = append(members, c)
	}
	return members
}
