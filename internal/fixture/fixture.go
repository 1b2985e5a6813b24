// Package fixture holds uiautomator dumps shared by tests across packages.
package fixture

// Feed is a waterfall feed screen: a tab title, a user row with a follow
// button, a RecyclerView with three cards (two columns) and a five-item
// bottom navigation bar.
//
// Node indices (document order) referenced by tests:
//
//	0  hierarchy
//	1  root FrameLayout            [0,0][1080,2400]
//	2  LinearLayout                [0,0][1080,2400]
//	3  TextView "发现"              [0,80][1080,200]
//	4  user row LinearLayout       [0,200][1080,360]
//	5    ImageView desc "头像"
//	6    TextView "小明"
//	7    Button "关注"              [820,240][1040,320]
//	8  RecyclerView                [0,360][1080,2200]
//	9    card root 1 (desc)        [24,370][528,1170]
//	10     clickable wrapper       [24,370][528,1160]
//	11       RelativeLayout
//	12         cover ImageView
//	13         bottom bar
//	14-17        View, "小明", desc "赞", "120"
//	18   card root 2 (desc)        [552,370][1056,1020]
//	19-26  same shape as card 1 ("小红", "88")
//	27   card root 3 (desc)        [24,1190][528,1690]
//	28-35  same shape as card 1 ("小红", "56")
//	36 bottom nav LinearLayout     [0,2200][1080,2400]
//	37-41 "首页" "购物" "发布" "消息" "我"
const Feed = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <node index="0" text="" resource-id="" class="android.widget.FrameLayout" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[0,0][1080,2400]">
    <node index="0" text="" resource-id="" class="android.widget.LinearLayout" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[0,0][1080,2400]">
      <node index="0" text="发现" resource-id="com.xingin.xhs:id/tab_title" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="true" enabled="true" scrollable="false" bounds="[0,80][1080,200]" />
      <node index="1" text="" resource-id="com.xingin.xhs:id/user_row" class="android.widget.LinearLayout" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[0,200][1080,360]">
        <node index="0" text="" resource-id="com.xingin.xhs:id/avatar" class="android.widget.ImageView" package="com.xingin.xhs" content-desc="头像" clickable="false" enabled="true" scrollable="false" bounds="[40,220][160,340]" />
        <node index="1" text="小明" resource-id="com.xingin.xhs:id/nickname" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[180,240][700,320]" />
        <node index="2" text="关注" resource-id="com.xingin.xhs:id/follow_btn" class="android.widget.Button" package="com.xingin.xhs" content-desc="" clickable="true" enabled="true" scrollable="false" bounds="[820,240][1040,320]" />
      </node>
      <node index="2" text="" resource-id="com.xingin.xhs:id/feed_list" class="androidx.recyclerview.widget.RecyclerView" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="true" bounds="[0,360][1080,2200]">
        <node index="0" text="" resource-id="" class="android.widget.FrameLayout" package="com.xingin.xhs" content-desc="笔记 旅行日记 来自小明 赞 120" clickable="false" enabled="true" scrollable="false" bounds="[24,370][528,1170]">
          <node index="0" text="" resource-id="com.xingin.xhs:id/card_wrapper" class="android.widget.FrameLayout" package="com.xingin.xhs" content-desc="" clickable="true" enabled="true" scrollable="false" bounds="[24,370][528,1160]">
            <node index="0" text="" resource-id="" class="android.widget.RelativeLayout" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[24,370][528,1160]">
              <node index="0" text="" resource-id="com.xingin.xhs:id/cover" class="android.widget.ImageView" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[24,370][528,880]" />
              <node index="1" text="" resource-id="com.xingin.xhs:id/bottom_bar" class="android.widget.LinearLayout" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[24,1040][528,1160]">
                <node index="0" text="" resource-id="" class="android.view.View" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[36,1060][96,1120]" />
                <node index="1" text="小明" resource-id="com.xingin.xhs:id/author" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[108,1060][380,1120]" />
                <node index="2" text="" resource-id="com.xingin.xhs:id/like_icon" class="android.widget.ImageView" package="com.xingin.xhs" content-desc="赞" clickable="false" enabled="true" scrollable="false" bounds="[400,1060][450,1120]" />
                <node index="3" text="120" resource-id="com.xingin.xhs:id/like_count" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[460,1060][516,1120]" />
              </node>
            </node>
          </node>
        </node>
        <node index="1" text="" resource-id="" class="android.widget.FrameLayout" package="com.xingin.xhs" content-desc="笔记 美食推荐 来自小红 赞 88" clickable="false" enabled="true" scrollable="false" bounds="[552,370][1056,1020]">
          <node index="0" text="" resource-id="com.xingin.xhs:id/card_wrapper" class="android.widget.FrameLayout" package="com.xingin.xhs" content-desc="" clickable="true" enabled="true" scrollable="false" bounds="[552,370][1056,1010]">
            <node index="0" text="" resource-id="" class="android.widget.RelativeLayout" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[552,370][1056,1010]">
              <node index="0" text="" resource-id="com.xingin.xhs:id/cover" class="android.widget.ImageView" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[552,370][1056,780]" />
              <node index="1" text="" resource-id="com.xingin.xhs:id/bottom_bar" class="android.widget.LinearLayout" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[552,900][1056,1010]">
                <node index="0" text="" resource-id="" class="android.view.View" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[564,920][624,980]" />
                <node index="1" text="小红" resource-id="com.xingin.xhs:id/author" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[636,920][908,980]" />
                <node index="2" text="" resource-id="com.xingin.xhs:id/like_icon" class="android.widget.ImageView" package="com.xingin.xhs" content-desc="赞" clickable="false" enabled="true" scrollable="false" bounds="[928,920][978,980]" />
                <node index="3" text="88" resource-id="com.xingin.xhs:id/like_count" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[988,920][1044,980]" />
              </node>
            </node>
          </node>
        </node>
        <node index="2" text="" resource-id="" class="android.widget.FrameLayout" package="com.xingin.xhs" content-desc="笔记 周末露营 来自小红 赞 56" clickable="false" enabled="true" scrollable="false" bounds="[24,1190][528,1690]">
          <node index="0" text="" resource-id="com.xingin.xhs:id/card_wrapper" class="android.widget.FrameLayout" package="com.xingin.xhs" content-desc="" clickable="true" enabled="true" scrollable="false" bounds="[24,1190][528,1680]">
            <node index="0" text="" resource-id="" class="android.widget.RelativeLayout" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[24,1190][528,1680]">
              <node index="0" text="" resource-id="com.xingin.xhs:id/cover" class="android.widget.ImageView" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[24,1190][528,1510]" />
              <node index="1" text="" resource-id="com.xingin.xhs:id/bottom_bar" class="android.widget.LinearLayout" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[24,1580][528,1680]">
                <node index="0" text="" resource-id="" class="android.view.View" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[36,1600][96,1660]" />
                <node index="1" text="小红" resource-id="com.xingin.xhs:id/author" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[108,1600][380,1660]" />
                <node index="2" text="" resource-id="com.xingin.xhs:id/like_icon" class="android.widget.ImageView" package="com.xingin.xhs" content-desc="赞" clickable="false" enabled="true" scrollable="false" bounds="[400,1600][450,1660]" />
                <node index="3" text="56" resource-id="com.xingin.xhs:id/like_count" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[460,1600][516,1660]" />
              </node>
            </node>
          </node>
        </node>
      </node>
      <node index="3" text="" resource-id="com.xingin.xhs:id/bottom_nav" class="android.widget.LinearLayout" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[0,2200][1080,2400]">
        <node index="0" text="首页" resource-id="com.xingin.xhs:id/nav_home" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="true" enabled="true" scrollable="false" bounds="[0,2200][216,2400]" />
        <node index="1" text="购物" resource-id="com.xingin.xhs:id/nav_shop" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="true" enabled="true" scrollable="false" bounds="[216,2200][432,2400]" />
        <node index="2" text="发布" resource-id="com.xingin.xhs:id/nav_post" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="true" enabled="true" scrollable="false" bounds="[432,2200][648,2400]" />
        <node index="3" text="消息" resource-id="com.xingin.xhs:id/nav_msg" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="true" enabled="true" scrollable="false" bounds="[648,2200][864,2400]" />
        <node index="4" text="我" resource-id="com.xingin.xhs:id/nav_me" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="true" enabled="true" scrollable="false" bounds="[864,2200][1080,2400]" />
      </node>
    </node>
  </node>
</hierarchy>`

// FeedScrolled is Feed after a short scroll: every card moved up by 40px,
// the follow button shifted by 8px, and the first card's like count changed.
const FeedScrolled = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <node index="0" text="" resource-id="" class="android.widget.FrameLayout" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[0,0][1080,2400]">
    <node index="0" text="" resource-id="" class="android.widget.LinearLayout" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[0,0][1080,2400]">
      <node index="0" text="发现" resource-id="com.xingin.xhs:id/tab_title" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="true" enabled="true" scrollable="false" bounds="[0,80][1080,200]" />
      <node index="1" text="" resource-id="com.xingin.xhs:id/user_row" class="android.widget.LinearLayout" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[0,200][1080,360]">
        <node index="0" text="" resource-id="com.xingin.xhs:id/avatar" class="android.widget.ImageView" package="com.xingin.xhs" content-desc="头像" clickable="false" enabled="true" scrollable="false" bounds="[40,220][160,340]" />
        <node index="1" text="小明" resource-id="com.xingin.xhs:id/nickname" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[180,240][700,320]" />
        <node index="2" text="关注" resource-id="com.xingin.xhs:id/follow_btn" class="android.widget.Button" package="com.xingin.xhs" content-desc="" clickable="true" enabled="true" scrollable="false" bounds="[812,244][1032,324]" />
      </node>
      <node index="2" text="" resource-id="com.xingin.xhs:id/feed_list" class="androidx.recyclerview.widget.RecyclerView" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="true" bounds="[0,360][1080,2200]">
        <node index="0" text="" resource-id="" class="android.widget.FrameLayout" package="com.xingin.xhs" content-desc="笔记 旅行日记 来自小明 赞 121" clickable="false" enabled="true" scrollable="false" bounds="[24,330][528,1130]">
          <node index="0" text="" resource-id="com.xingin.xhs:id/card_wrapper" class="android.widget.FrameLayout" package="com.xingin.xhs" content-desc="" clickable="true" enabled="true" scrollable="false" bounds="[24,330][528,1120]">
            <node index="0" text="" resource-id="" class="android.widget.RelativeLayout" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[24,330][528,1120]">
              <node index="0" text="" resource-id="com.xingin.xhs:id/cover" class="android.widget.ImageView" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[24,330][528,840]" />
              <node index="1" text="" resource-id="com.xingin.xhs:id/bottom_bar" class="android.widget.LinearLayout" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[24,1000][528,1120]">
                <node index="0" text="" resource-id="" class="android.view.View" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[36,1020][96,1080]" />
                <node index="1" text="小明" resource-id="com.xingin.xhs:id/author" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[108,1020][380,1080]" />
                <node index="2" text="" resource-id="com.xingin.xhs:id/like_icon" class="android.widget.ImageView" package="com.xingin.xhs" content-desc="赞" clickable="false" enabled="true" scrollable="false" bounds="[400,1020][450,1080]" />
                <node index="3" text="121" resource-id="com.xingin.xhs:id/like_count" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[460,1020][516,1080]" />
              </node>
            </node>
          </node>
        </node>
        <node index="1" text="" resource-id="" class="android.widget.FrameLayout" package="com.xingin.xhs" content-desc="笔记 美食推荐 来自小红 赞 88" clickable="false" enabled="true" scrollable="false" bounds="[552,330][1056,980]">
          <node index="0" text="" resource-id="com.xingin.xhs:id/card_wrapper" class="android.widget.FrameLayout" package="com.xingin.xhs" content-desc="" clickable="true" enabled="true" scrollable="false" bounds="[552,330][1056,970]">
            <node index="0" text="" resource-id="" class="android.widget.RelativeLayout" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[552,330][1056,970]">
              <node index="0" text="" resource-id="com.xingin.xhs:id/cover" class="android.widget.ImageView" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[552,330][1056,740]" />
              <node index="1" text="" resource-id="com.xingin.xhs:id/bottom_bar" class="android.widget.LinearLayout" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[552,860][1056,970]">
                <node index="0" text="" resource-id="" class="android.view.View" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[564,880][624,940]" />
                <node index="1" text="小红" resource-id="com.xingin.xhs:id/author" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[636,880][908,940]" />
                <node index="2" text="" resource-id="com.xingin.xhs:id/like_icon" class="android.widget.ImageView" package="com.xingin.xhs" content-desc="赞" clickable="false" enabled="true" scrollable="false" bounds="[928,880][978,940]" />
                <node index="3" text="88" resource-id="com.xingin.xhs:id/like_count" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[988,880][1044,940]" />
              </node>
            </node>
          </node>
        </node>
      </node>
      <node index="3" text="" resource-id="com.xingin.xhs:id/bottom_nav" class="android.widget.LinearLayout" package="com.xingin.xhs" content-desc="" clickable="false" enabled="true" scrollable="false" bounds="[0,2200][1080,2400]">
        <node index="0" text="首页" resource-id="com.xingin.xhs:id/nav_home" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="true" enabled="true" scrollable="false" bounds="[0,2200][216,2400]" />
        <node index="1" text="购物" resource-id="com.xingin.xhs:id/nav_shop" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="true" enabled="true" scrollable="false" bounds="[216,2200][432,2400]" />
        <node index="2" text="发布" resource-id="com.xingin.xhs:id/nav_post" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="true" enabled="true" scrollable="false" bounds="[432,2200][648,2400]" />
        <node index="3" text="消息" resource-id="com.xingin.xhs:id/nav_msg" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="true" enabled="true" scrollable="false" bounds="[648,2200][864,2400]" />
        <node index="4" text="我" resource-id="com.xingin.xhs:id/nav_me" class="android.widget.TextView" package="com.xingin.xhs" content-desc="" clickable="true" enabled="true" scrollable="false" bounds="[864,2200][1080,2400]" />
      </node>
    </node>
  </node>
</hierarchy>`

// Minimal is a two-node dump with a hidden degenerate-bounds child.
const Minimal = `<?xml version="1.0" encoding="UTF-8"?>
<hierarchy rotation="0">
  <node index="0" text="OK" resource-id="android:id/button1" class="android.widget.Button" package="android" content-desc="" clickable="true" enabled="true" bounds="[100,200][300,280]">
    <node index="0" text="" resource-id="" class="android.view.View" package="android" content-desc="" clickable="false" enabled="true" bounds="[0,0][0,0]" />
  </node>
</hierarchy>`
