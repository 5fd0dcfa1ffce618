// File: cmd/cli-tester/main.go
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ChatRelay/internal/client" // 复用客户端核心
	"ChatRelay/pkg/protocol"    // 引入协议
)

func main() {
	addr := flag.String("addr", "127.0.0.1:1234", "服务器地址")
	downloads := flag.String("downloads", "received", "收到的文件保存目录")
	flag.Parse()

	// --- 1. 获取用户名 ---
	fmt.Print("请输入您的用户名: ")
	reader := bufio.NewReader(os.Stdin)
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)

	// --- 2. 连接服务器并登录 ---
	coreClient := client.NewClient()
	if err := coreClient.Connect(*addr); err != nil {
		fmt.Println("错误：无法连接到服务器:", err)
		return
	}
	defer coreClient.Close()

	welcome, err := coreClient.Login(username)
	if err != nil {
		fmt.Println("登录失败:", err)
		return
	}
	fmt.Println(welcome)
	coreClient.Start()

	// --- 3. 启动一个goroutine专门监听并打印服务器消息 ---
	go listenServer(coreClient, *downloads)

	// --- 4. 主goroutine负责监听用户键盘输入 ---
	listenInput(coreClient, reader)
}

// listenServer 监听并打印来自服务器的所有消息
func listenServer(c *client.Client, downloads string) {
	for ev := range c.GetIncomingMessages() {
		if ev.File != nil {
			path, err := saveFile(downloads, ev.File)
			if err != nil {
				fmt.Printf("\n[系统消息]: 保存文件 %s 失败: %v\n", ev.File.Name, err)
			} else {
				fmt.Printf("\n[系统消息]: 收到文件 %s (%d 字节)，已保存到 %s\n", ev.File.Name, len(ev.File.Data), path)
			}
		} else {
			fmt.Printf("\n%s\n", ev.Line)
		}
		fmt.Print("> ") // 打印提示符，方便继续输入
	}
	fmt.Println("与服务器的连接已断开。")
	os.Exit(0)
}

func saveFile(dir string, f *client.File) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, filepath.Base(f.Name))
	return path, os.WriteFile(path, f.Data, 0o644)
}

// listenInput 监听并处理用户的键盘输入
func listenInput(c *client.Client, reader *bufio.Reader) {
	fmt.Println("--- 命令提示 ---")
	fmt.Println("/create <群代码>        - 创建群组")
	fmt.Println("/join <群代码>          - 加入群组")
	fmt.Println("/g <群代码> <消息>      - 发送群组消息")
	fmt.Println("/file <路径> [群代码]   - 发送文件（不指定群组则广播）")
	fmt.Println("直接输入内容            - 发送广播消息")
	fmt.Println("----------------")

	for {
		fmt.Print("> ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		parts := strings.SplitN(input, " ", 3)
		switch parts[0] {
		case "/create":
			if len(parts) > 1 {
				err = c.CreateGroup(parts[1])
			}
		case "/join":
			if len(parts) > 1 {
				err = c.JoinGroup(parts[1])
			}
		case "/g":
			if len(parts) == 3 {
				err = c.SendGroupMessage(parts[1], parts[2])
			}
		case "/file":
			if len(parts) > 1 {
				err = sendFile(c, parts[1:])
			}
		default:
			err = c.SendText(input)
		}
		if err != nil {
			fmt.Println("错误:", err)
		}
	}
}

func sendFile(c *client.Client, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	name := filepath.Base(args[0])
	if len(args) > 1 {
		return c.SendFile(protocol.ModeGroup, args[1], name, data)
	}
	return c.SendFile(protocol.ModeBroadcast, "", name, data)
}
