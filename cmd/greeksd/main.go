// Command greeksd 运行期权定价与盈亏归因服务，也提供一次性计算希腊值与归因报告的子命令。
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
