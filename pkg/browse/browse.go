package browse

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"itemstore/pkg/cluster"

	"github.com/dustin/go-humanize"
)

// Browser 是目录浏览的协作者
// 它拿到一个已经解析好的节点位置和显示标签，返回可渲染的目录列表。
type Browser interface {
	Browse(ctx context.Context, loc cluster.Location, label string) (*Listing, error)
}

// Listing 是一次浏览的结果
type Listing struct {
	Label   string
	Node    string
	Path    string
	Entries []cluster.Entry
}

// Lister 通过节点通道列出目录
type Lister struct{}

func (Lister) Browse(ctx context.Context, loc cluster.Location, label string) (*Listing, error) {
	if loc.Channel == nil {
		return nil, fmt.Errorf("cannot browse %s: location is not bound to a node", loc)
	}
	entries, err := loc.Channel.List(ctx, loc.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", loc, err)
	}
	return &Listing{
		Label:   label,
		Node:    loc.Channel.Name(),
		Path:    loc.Path,
		Entries: entries,
	}, nil
}

// Render 以表格形式打印列表 (类似 ls -l)
func (l *Listing) Render(w io.Writer) error {
	fmt.Fprintf(w, "%s\n", l.Label)
	fmt.Fprintf(w, "Node: %s\n", l.Node)
	fmt.Fprintf(w, "Path: %s\n\n", l.Path)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "TYPE\tSIZE\tMODIFIED\tNAME\n")
	var total uint64
	for _, e := range l.Entries {
		if e.Dir {
			fmt.Fprintf(tw, "dir\t-\t-\t%s/\n", e.Path)
			continue
		}
		total += uint64(e.Size)
		fmt.Fprintf(tw, "file\t%s\t%s\t%s\n", humanize.IBytes(uint64(e.Size)), humanize.Time(e.ModTime), e.Path)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d entries, %s\n", len(l.Entries), humanize.IBytes(total))
	return err
}
